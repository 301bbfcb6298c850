package store

import (
	"time"

	"github.com/laserman120/discord-bridge/internal/model"
)

// LinkEntry ties one destination message to the source content it mirrors.
type LinkEntry struct {
	SourceID       string
	MessageID      string
	Channel        model.ChannelClass
	State          model.State
	Endpoint       string
	CreatedAt      time.Time
	CreatedAtEpoch int64
}

// HasChannel reports whether any entry belongs to channel.
func HasChannel(entries []LinkEntry, channel model.ChannelClass) bool {
	for _, e := range entries {
		if e.Channel == channel {
			return true
		}
	}
	return false
}

// OfChannel returns the entries that belong to channel.
func OfChannel(entries []LinkEntry, channel model.ChannelClass) []LinkEntry {
	var out []LinkEntry
	for _, e := range entries {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}
