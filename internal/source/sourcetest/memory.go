// Package sourcetest provides an in-memory source.Client for tests.
package sourcetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/source"
)

type Memory struct {
	mu            sync.Mutex
	Items         map[string]*model.Item
	Queue         []*model.Item
	Spam          []*model.Item
	Log           []model.ModLogEntry
	Mods          []string
	Authors       map[string]model.AuthorStats
	Conversations map[string]*model.Conversation

	// QueueErr makes ModQueue fail.
	QueueErr error
	Calls    map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		Items:         map[string]*model.Item{},
		Authors:       map[string]model.AuthorStats{},
		Conversations: map[string]*model.Conversation{},
		Calls:         map[string]int{},
	}
}

func (m *Memory) Put(items ...*model.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.Items[it.ID] = it
	}
}

func (m *Memory) count(name string) {
	m.mu.Lock()
	m.Calls[name]++
	m.mu.Unlock()
}

func (m *Memory) FetchItem(ctx context.Context, id string) (*model.Item, error) {
	m.count("FetchItem")
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.Items[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, source.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (m *Memory) FetchItems(ctx context.Context, ids []string) (map[string]*model.Item, error) {
	m.count("FetchItems")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*model.Item, len(ids))
	for _, id := range ids {
		if it, ok := m.Items[id]; ok {
			cp := *it
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *Memory) ModQueue(ctx context.Context) ([]*model.Item, error) {
	m.count("ModQueue")
	if m.QueueErr != nil {
		return nil, m.QueueErr
	}
	return m.Queue, nil
}

func (m *Memory) SpamQueue(ctx context.Context) ([]*model.Item, error) {
	m.count("SpamQueue")
	return m.Spam, nil
}

func (m *Memory) ModLog(ctx context.Context, action, target string, limit int) ([]model.ModLogEntry, error) {
	m.count("ModLog")
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ModLogEntry
	scanned := 0
	for _, e := range m.Log {
		if action != "" && e.Action != action {
			continue
		}
		if scanned == limit {
			break
		}
		scanned++
		if target != "" && e.TargetID != target {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Moderators(ctx context.Context) ([]string, error) {
	m.count("Moderators")
	return m.Mods, nil
}

func (m *Memory) AuthorStats(ctx context.Context, name string) (model.AuthorStats, error) {
	m.count("AuthorStats")
	s, ok := m.Authors[name]
	if !ok {
		return model.AuthorStats{}, fmt.Errorf("author %s: %w", name, source.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	m.count("Conversation")
	c, ok := m.Conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, source.ErrNotFound)
	}
	return c, nil
}
