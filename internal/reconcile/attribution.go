package reconcile

import (
	"strings"

	"github.com/laserman120/discord-bridge/internal/model"
)

// Actor is the attribution bucket of whoever changed an item's state.
type Actor int

const (
	ActorUnknown Actor = iota
	ActorModerator
	ActorAutomated
)

func (a Actor) String() string {
	switch a {
	case ActorModerator:
		return "moderator"
	case ActorAutomated:
		return "automated"
	}
	return "unknown"
}

// adminAccounts are platform accounts that always count as automated.
var adminAccounts = map[string]struct{}{
	"anti_evil_ops":        {},
	"anti_evil ops":        {},
	"anti_evil operations": {},
	"modcodeofconduct":     {},
	"reddit_legal":         {},
	"reddit legal":         {},
	"aevo":                 {},
	"safety":               {},
	"[ redacted ]":         {},
}

func IsAdminAccount(name string) bool {
	_, ok := adminAccounts[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Classify buckets name. automated must be lower-cased; moderators are
// compared case-insensitively.
func Classify(name string, automated, moderators []string) Actor {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ActorUnknown
	}
	for _, a := range automated {
		if a == n {
			return ActorAutomated
		}
	}
	if IsAdminAccount(n) {
		return ActorAutomated
	}
	for _, m := range moderators {
		if strings.EqualFold(m, n) {
			return ActorModerator
		}
	}
	return ActorUnknown
}

// Effective applies the attribution upgrade: a removal by an automated
// actor is awaiting review rather than final.
func Effective(state model.State, actor Actor) model.State {
	if state == model.StateRemoved && actor == ActorAutomated {
		return model.StateAwaitingReview
	}
	return state
}
