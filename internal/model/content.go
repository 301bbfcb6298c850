package model

import "time"

type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
)

// Item is a post or comment as returned by the source platform.
type Item struct {
	ID                string      `json:"id"`
	Kind              ContentKind `json:"kind"`
	Title             string      `json:"title"`
	Body              string      `json:"body"`
	URL               string      `json:"url"`
	Permalink         string      `json:"permalink"`
	Author            string      `json:"author"`
	Subreddit         string      `json:"subreddit"`
	CreatedAt         time.Time   `json:"createdAt"`
	Flair             string      `json:"flair,omitempty"`
	AuthorFlair       string      `json:"authorFlair,omitempty"`
	Thumbnail         string      `json:"thumbnail,omitempty"`
	PreviewURL        string      `json:"previewUrl,omitempty"`
	Removed           bool        `json:"removed"`
	Spam              bool        `json:"spam"`
	Approved          bool        `json:"approved"`
	RemovedByCategory string      `json:"removedByCategory,omitempty"`
	NumReports        int         `json:"numReports"`
	UserReportReasons []string    `json:"userReportReasons,omitempty"`
	ModReportReasons  []string    `json:"modReportReasons,omitempty"`
	CrosspostParentID string      `json:"crosspostParentId,omitempty"`
}

func (i *Item) IsPost() bool { return i.Kind == KindPost }

// Deleted reports whether the author deleted the item.
func (i *Item) Deleted() bool {
	if i.IsPost() {
		return i.RemovedByCategory == "deleted"
	}
	return i.Author == "[deleted]"
}

// AuthorStats is the slowly changing per-author enrichment.
type AuthorStats struct {
	Name         string    `json:"name"`
	LinkKarma    int       `json:"linkKarma"`
	CommentKarma int       `json:"commentKarma"`
	CreatedAt    time.Time `json:"createdAt"`
	Flair        string    `json:"flair,omitempty"`
}

// ContentDetail is the normalized, enriched view of an item used to render
// notifications. It is rebuilt on every pass and never persisted.
type ContentDetail struct {
	ID              string
	Kind            ContentKind
	Title           string
	Body            string
	URL             string
	Permalink       string
	Author          string
	Subreddit       string
	CreatedAt       time.Time
	Flair           string
	Thumbnail       string
	ImageURL        string
	RemovalReason   string
	RemovedBy       string
	ReportReasons   []string
	ReportCount     int
	AuthorStats     *AuthorStats
	CrosspostParent *ContentDetail
}

// ModLogEntry is a single moderation log record.
type ModLogEntry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Moderator   string    `json:"moderator"`
	TargetID    string    `json:"targetId"`
	Details     string    `json:"details"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conversation is a private moderator conversation thread.
type Conversation struct {
	ID       string                `json:"id"`
	Subject  string                `json:"subject"`
	State    string                `json:"state"`
	Messages []ConversationMessage `json:"messages"`
}

func (c *Conversation) Archived() bool { return c.State == "Archived" }

type ConversationMessage struct {
	ID              string    `json:"id"`
	Author          string    `json:"author"`
	AuthorIsMod     bool      `json:"authorIsMod"`
	ParticipatingAs string    `json:"participatingAs"`
	Body            string    `json:"body"`
	Date            time.Time `json:"date"`
}

func (m ConversationMessage) FromModerator() bool {
	return m.ParticipatingAs == "moderator" || m.AuthorIsMod
}
