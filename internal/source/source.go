// Package source reads content, moderation state and conversations from the
// source platform.
package source

import (
	"context"
	"errors"
	"strings"

	"github.com/laserman120/discord-bridge/internal/model"
)

var ErrNotFound = errors.New("item not found")

// Client is the read side of the source platform API.
type Client interface {
	FetchItem(ctx context.Context, id string) (*model.Item, error)
	// FetchItems looks up many items in one round trip. Ids that do not
	// resolve are absent from the result.
	FetchItems(ctx context.Context, ids []string) (map[string]*model.Item, error)
	ModQueue(ctx context.Context) ([]*model.Item, error)
	SpamQueue(ctx context.Context) ([]*model.Item, error)
	// ModLog returns entries of one action type, newest first, scanning at
	// most limit entries. A non-empty target keeps only entries about that
	// item and stops at the first page holding one.
	ModLog(ctx context.Context, action, target string, limit int) ([]model.ModLogEntry, error)
	Moderators(ctx context.Context) ([]string, error)
	AuthorStats(ctx context.Context, name string) (model.AuthorStats, error)
	Conversation(ctx context.Context, id string) (*model.Conversation, error)
}

// Snapshot is the mod queue as seen at one point in time. A nil Snapshot
// means the queue could not be read.
type Snapshot map[string]*model.Item

func NewSnapshot(items []*model.Item) Snapshot {
	s := make(Snapshot, len(items))
	for _, it := range items {
		s[it.ID] = it
	}
	return s
}

func (s Snapshot) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IsModerator reports whether name is on the moderator list, ignoring case.
func IsModerator(ctx context.Context, c Client, name string) (bool, error) {
	mods, err := c.Moderators(ctx)
	if err != nil {
		return false, err
	}
	return containsFold(mods, name), nil
}

func containsFold(list []string, name string) bool {
	for _, m := range list {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}
