package model

import "strings"

// HandlerName selects the handler a queued task is dispatched to.
type HandlerName string

const (
	HandlerNewPost       HandlerName = "NewPostHandler"
	HandlerPublicPost    HandlerName = "PublicPostHandler"
	HandlerStateSync     HandlerName = "StateSyncHandler"
	HandlerRemoval       HandlerName = "RemovalHandler"
	HandlerSpamRemoval   HandlerName = "SpamRemovalHandler"
	HandlerRemovalReason HandlerName = "RemovalReasonHandler"
	HandlerModLog        HandlerName = "ModLogHandler"
	HandlerUpdate        HandlerName = "UpdateHandler"
	HandlerFlairWatch    HandlerName = "FlairWatchHandler"
	HandlerModActivity   HandlerName = "ModActivityHandler"
	HandlerModAbuse      HandlerName = "ModAbuseHandler"
	HandlerModMail       HandlerName = "ModMailHandler"
	HandlerReport        HandlerName = "ReportHandler"
	HandlerDeletion      HandlerName = "DeletionHandler"
	HandlerModQueue      HandlerName = "ModQueueHandler"
)

// AllHandlers lists every handler name. Dispatch tables are checked against it.
var AllHandlers = []HandlerName{
	HandlerNewPost, HandlerPublicPost, HandlerStateSync, HandlerRemoval, HandlerSpamRemoval,
	HandlerRemovalReason, HandlerModLog, HandlerUpdate, HandlerFlairWatch, HandlerModActivity,
	HandlerModAbuse, HandlerModMail, HandlerReport, HandlerDeletion, HandlerModQueue,
}

func (h HandlerName) Valid() bool {
	for _, n := range AllHandlers {
		if n == h {
			return true
		}
	}
	return false
}

// EventKind tags the platform event a payload was produced from.
type EventKind string

const (
	EventModAction         EventKind = "ModAction"
	EventPostSubmit        EventKind = "PostSubmit"
	EventCommentSubmit     EventKind = "CommentSubmit"
	EventPostDelete        EventKind = "PostDelete"
	EventCommentDelete     EventKind = "CommentDelete"
	EventModMail           EventKind = "ModMail"
	EventPostReport        EventKind = "PostReport"
	EventCommentReport     EventKind = "CommentReport"
	EventPostUpdate        EventKind = "PostUpdate"
	EventCommentUpdate     EventKind = "CommentUpdate"
	EventPostNsfwUpdate    EventKind = "PostNsfwUpdate"
	EventPostSpoilerUpdate EventKind = "PostSpoilerUpdate"
	EventPostFlairUpdate   EventKind = "PostFlairUpdate"
	// EventSweep marks payloads synthesized by the consistency sweeps.
	EventSweep EventKind = "Sweep"
)

type Ref struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payload is the normalized event data carried by a task. Kind says which of
// the optional fields are meaningful.
type Payload struct {
	Kind              EventKind `json:"type"`
	ID                string    `json:"id,omitempty"`
	ItemID            string    `json:"itemId,omitempty"`
	PostID            string    `json:"postId,omitempty"`
	CommentID         string    `json:"commentId,omitempty"`
	TargetID          string    `json:"targetId,omitempty"`
	TargetPost        *Ref      `json:"targetPost,omitempty"`
	TargetComment     *Ref      `json:"targetComment,omitempty"`
	TargetUser        *UserRef  `json:"targetUser,omitempty"`
	Action            string    `json:"action,omitempty"`
	Moderator         string    `json:"moderatorName,omitempty"`
	Details           string    `json:"details,omitempty"`
	Description       string    `json:"description,omitempty"`
	Subreddit         string    `json:"subreddit,omitempty"`
	ConversationID    string    `json:"conversationId,omitempty"`
	CrosspostParentID string    `json:"crosspostParentId,omitempty"`
	TargetState       State     `json:"targetState,omitempty"`
}

// ContentID returns the canonical post or comment id the payload refers to,
// or "" when it refers to none. Delete events use the id matching their kind;
// everything else takes the first candidate that is a content id.
func (p Payload) ContentID() string {
	switch p.Kind {
	case EventCommentDelete:
		if IsContentID(p.CommentID) {
			return p.CommentID
		}
	case EventPostDelete:
		if IsContentID(p.PostID) {
			return p.PostID
		}
	}
	candidates := []string{p.ID, p.ItemID, p.PostID, p.CommentID}
	if p.TargetPost != nil {
		candidates = append(candidates, p.TargetPost.ID)
	}
	if p.TargetComment != nil {
		candidates = append(candidates, p.TargetComment.ID)
	}
	candidates = append(candidates, p.TargetID)
	for _, c := range candidates {
		if IsContentID(c) {
			return c
		}
	}
	return ""
}

// Target returns the id a moderator action is aimed at.
func (p Payload) Target() string {
	if p.TargetPost != nil && p.TargetPost.ID != "" {
		return p.TargetPost.ID
	}
	if p.TargetComment != nil && p.TargetComment.ID != "" {
		return p.TargetComment.ID
	}
	return p.TargetID
}

// Task is one unit of queued work.
type Task struct {
	Handler HandlerName `json:"handler"`
	Payload Payload     `json:"data"`
}

// IsContentID reports whether id names a post (t3_) or a comment (t1_).
func IsContentID(id string) bool {
	return strings.HasPrefix(id, "t3_") || strings.HasPrefix(id, "t1_")
}

// IsPostID reports whether id names a post.
func IsPostID(id string) bool {
	return strings.HasPrefix(id, "t3_")
}
