package model

// State is the lifecycle state a notification reflects.
type State string

const (
	StateLive            State = "LIVE"
	StateApproved        State = "APPROVED"
	StateRemoved         State = "REMOVED"
	StateSpam            State = "SPAM"
	StateAwaitingReview  State = "AWAITING_REVIEW"
	StateUnhandledReport State = "UNHANDLED_REPORT"
	StateDeleted         State = "DELETED"
	StatePublicPost      State = "PUBLIC_POST"

	// Conversation sub-machine.
	StateNewThread State = "NEW_MODMAIL"
	StateAnswered  State = "ANSWERED_MODMAIL"
	StateNewReply  State = "NEW_REPLY_MODMAIL"
	StateArchived  State = "ARCHIVED_MODMAIL"
)

var allStates = map[State]struct{}{
	StateLive: {}, StateApproved: {}, StateRemoved: {}, StateSpam: {},
	StateAwaitingReview: {}, StateUnhandledReport: {}, StateDeleted: {}, StatePublicPost: {},
	StateNewThread: {}, StateAnswered: {}, StateNewReply: {}, StateArchived: {},
}

func (s State) Valid() bool {
	_, ok := allStates[s]
	return ok
}

// Hidden reports whether content in this state must not stay on a
// visibility-gated channel.
func (s State) Hidden() bool {
	switch s {
	case StateRemoved, StateAwaitingReview, StateSpam, StateDeleted:
		return true
	}
	return false
}

// Visible reports whether content in this state may be shown on a
// visibility-gated channel.
func (s State) Visible() bool {
	return s == StateLive || s == StateApproved
}

// StateFromModAction maps a moderator action name to the state it puts the
// target in. The second return value is false for actions that do not change
// visibility.
func StateFromModAction(action string) (State, bool) {
	switch action {
	case "approvelink", "approvecomment":
		return StateApproved, true
	case "removelink", "removecomment":
		return StateRemoved, true
	case "spamlink", "spamcomment":
		return StateSpam, true
	}
	return "", false
}

// ChannelClass names the policy bucket a notification belongs to.
type ChannelClass string

const (
	ChannelNewPosts         ChannelClass = "NEW_POSTS_CHANNEL"
	ChannelPublicNewPosts   ChannelClass = "PUBLIC_NEW_POSTS_CHANNEL"
	ChannelRemovals         ChannelClass = "REMOVALS_CHANNEL"
	ChannelReports          ChannelClass = "REPORTS_CHANNEL"
	ChannelModMail          ChannelClass = "MODMAIL_CHANNEL"
	ChannelModLog           ChannelClass = "MODLOG_CHANNEL"
	ChannelFlairWatch       ChannelClass = "FLAIR_WATCH_CHANNEL"
	ChannelPublicFlairWatch ChannelClass = "PUBLIC_FLAIR_WATCH_CHANNEL"
	ChannelModQueue         ChannelClass = "MOD_QUEUE_CHANNEL"
	ChannelModActivity      ChannelClass = "MOD_ACTIVITY_CHANNEL"
)

func (c ChannelClass) Valid() bool {
	switch c {
	case ChannelNewPosts, ChannelPublicNewPosts, ChannelRemovals, ChannelReports, ChannelModMail,
		ChannelModLog, ChannelFlairWatch, ChannelPublicFlairWatch, ChannelModQueue, ChannelModActivity:
		return true
	}
	return false
}

// Evolving reports whether a single notification of this class is edited in
// place across the content's lifetime.
func (c ChannelClass) Evolving() bool {
	switch c {
	case ChannelNewPosts, ChannelRemovals, ChannelReports, ChannelFlairWatch, ChannelModQueue, ChannelModActivity:
		return true
	}
	return false
}

// Gated reports whether notifications of this class only exist while the
// content is in a visible state.
func (c ChannelClass) Gated() bool {
	switch c {
	case ChannelPublicNewPosts, ChannelPublicFlairWatch, ChannelModQueue:
		return true
	}
	return false
}

// RollingLog reports whether the class keeps many independent entries per
// source id that are never reconciled.
func (c ChannelClass) RollingLog() bool {
	return c == ChannelModLog || c == ChannelModMail
}
