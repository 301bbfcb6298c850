package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/retry"
)

const (
	infoChunk      = 100
	modLogPageSize = 100
)

type Options struct {
	BaseURL    string
	Token      string
	UserAgent  string
	Subreddit  string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// Reddit is a Client over the OAuth JSON API. Reads are retried with backoff;
// a 404 is reported as ErrNotFound without retrying.
type Reddit struct {
	baseURL    string
	token      string
	userAgent  string
	subreddit  string
	httpClient *http.Client
	retry      retry.Policy
	logger     *log.Logger
}

func NewReddit(opts Options, logger *log.Logger) *Reddit {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://oauth.reddit.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	policy := opts.Retry
	if policy.Attempts <= 0 {
		policy = retry.Default
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "discord-bridge/1.0"
	}
	return &Reddit{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		userAgent:  userAgent,
		subreddit:  opts.Subreddit,
		httpClient: httpClient,
		retry:      policy,
		logger:     logger.Named("reddit"),
	}
}

func (r *Reddit) FetchItem(ctx context.Context, id string) (*model.Item, error) {
	items, err := r.FetchItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	item, ok := items[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, ErrNotFound)
	}
	return item, nil
}

func (r *Reddit) FetchItems(ctx context.Context, ids []string) (map[string]*model.Item, error) {
	out := make(map[string]*model.Item, len(ids))
	for start := 0; start < len(ids); start += infoChunk {
		end := start + infoChunk
		if end > len(ids) {
			end = len(ids)
		}
		var l listing
		q := url.Values{"id": {strings.Join(ids[start:end], ",")}}
		if err := r.get(ctx, "/api/info", q, &l); err != nil {
			return nil, fmt.Errorf("fetch items: %w", err)
		}
		for _, it := range l.items() {
			out[it.ID] = it
		}
	}
	return out, nil
}

func (r *Reddit) ModQueue(ctx context.Context) ([]*model.Item, error) {
	return r.listing(ctx, "modqueue")
}

func (r *Reddit) SpamQueue(ctx context.Context) ([]*model.Item, error) {
	return r.listing(ctx, "spam")
}

func (r *Reddit) listing(ctx context.Context, name string) ([]*model.Item, error) {
	var l listing
	q := url.Values{"limit": {"100"}, "show": {"all"}}
	if err := r.get(ctx, "/r/"+r.subreddit+"/about/"+name, q, &l); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return l.items(), nil
}

func (r *Reddit) ModLog(ctx context.Context, action, target string, limit int) ([]model.ModLogEntry, error) {
	q := url.Values{}
	if action != "" {
		q.Set("type", action)
	}
	var entries []model.ModLogEntry
	scanned := 0
	for scanned < limit {
		page := min(limit-scanned, modLogPageSize)
		q.Set("limit", strconv.Itoa(page))
		var l struct {
			Data struct {
				After    string `json:"after"`
				Children []struct {
					Data struct {
						ID             string  `json:"id"`
						Action         string  `json:"action"`
						Mod            string  `json:"mod"`
						TargetFullname string  `json:"target_fullname"`
						Details        string  `json:"details"`
						Description    string  `json:"description"`
						CreatedUTC     float64 `json:"created_utc"`
					} `json:"data"`
				} `json:"children"`
			} `json:"data"`
		}
		if err := r.get(ctx, "/r/"+r.subreddit+"/about/log", q, &l); err != nil {
			return nil, fmt.Errorf("read mod log: %w", err)
		}
		for _, c := range l.Data.Children {
			d := c.Data
			if target != "" && d.TargetFullname != target {
				continue
			}
			entries = append(entries, model.ModLogEntry{
				ID:          d.ID,
				Action:      d.Action,
				Moderator:   d.Mod,
				TargetID:    d.TargetFullname,
				Details:     d.Details,
				Description: d.Description,
				CreatedAt:   epoch(d.CreatedUTC),
			})
		}
		scanned += len(l.Data.Children)
		// one match is enough for a targeted lookup
		if (target != "" && len(entries) > 0) || l.Data.After == "" || len(l.Data.Children) == 0 {
			break
		}
		q.Set("after", l.Data.After)
	}
	return entries, nil
}

func (r *Reddit) Moderators(ctx context.Context) ([]string, error) {
	var l struct {
		Data struct {
			Children []struct {
				Name string `json:"name"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := r.get(ctx, "/r/"+r.subreddit+"/about/moderators", nil, &l); err != nil {
		return nil, fmt.Errorf("read moderators: %w", err)
	}
	names := make([]string, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		names = append(names, c.Name)
	}
	return names, nil
}

func (r *Reddit) AuthorStats(ctx context.Context, name string) (model.AuthorStats, error) {
	var about struct {
		Data struct {
			Name         string  `json:"name"`
			LinkKarma    int     `json:"link_karma"`
			CommentKarma int     `json:"comment_karma"`
			CreatedUTC   float64 `json:"created_utc"`
		} `json:"data"`
	}
	if err := r.get(ctx, "/user/"+url.PathEscape(name)+"/about", nil, &about); err != nil {
		return model.AuthorStats{}, fmt.Errorf("read author %s: %w", name, err)
	}
	return model.AuthorStats{
		Name:         about.Data.Name,
		LinkKarma:    about.Data.LinkKarma,
		CommentKarma: about.Data.CommentKarma,
		CreatedAt:    epoch(about.Data.CreatedUTC),
	}, nil
}

// conversation states as numbered by the modmail API
const conversationArchived = 2

func (r *Reddit) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var resp struct {
		Conversation struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			State   int    `json:"state"`
		} `json:"conversation"`
		Messages map[string]struct {
			ID     string `json:"id"`
			Body   string `json:"bodyMarkdown"`
			Date   string `json:"date"`
			Author struct {
				Name  string `json:"name"`
				IsMod bool   `json:"isMod"`
				IsOp  bool   `json:"isOp"`
			} `json:"author"`
			ParticipatingAs string `json:"participatingAs"`
		} `json:"messages"`
	}
	if err := r.get(ctx, "/api/mod/conversations/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	conv := &model.Conversation{
		ID:      resp.Conversation.ID,
		Subject: resp.Conversation.Subject,
		State:   "Open",
	}
	if resp.Conversation.State == conversationArchived {
		conv.State = "Archived"
	}
	for _, m := range resp.Messages {
		date, _ := time.Parse(time.RFC3339, m.Date)
		conv.Messages = append(conv.Messages, model.ConversationMessage{
			ID:              m.ID,
			Author:          m.Author.Name,
			AuthorIsMod:     m.Author.IsMod,
			ParticipatingAs: m.ParticipatingAs,
			Body:            m.Body,
			Date:            date,
		})
	}
	sort.Slice(conv.Messages, func(i, j int) bool {
		return conv.Messages[i].Date.Before(conv.Messages[j].Date)
	})
	return conv, nil
}

var errStatus = errors.New("unexpected status")

func (r *Reddit) get(ctx context.Context, path string, query url.Values, dst any) error {
	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return r.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		req.Header.Set("User-Agent", r.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			r.logger.Warnw("Request failed", "path", path, "error", err)
			return err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			r.logger.Warnw("Retryable response", "path", path, "status", resp.StatusCode)
			return fmt.Errorf("%w %d", errStatus, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return retry.Permanent(fmt.Errorf("%w %d: %s", errStatus, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	})
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string  `json:"kind"`
			Data rawItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type rawItem struct {
	Name              string          `json:"name"`
	Title             string          `json:"title"`
	Selftext          string          `json:"selftext"`
	Body              string          `json:"body"`
	URL               string          `json:"url"`
	Permalink         string          `json:"permalink"`
	Author            string          `json:"author"`
	Subreddit         string          `json:"subreddit"`
	CreatedUTC        float64         `json:"created_utc"`
	LinkFlairText     string          `json:"link_flair_text"`
	AuthorFlairText   string          `json:"author_flair_text"`
	Thumbnail         string          `json:"thumbnail"`
	Removed           bool            `json:"removed"`
	Spam              bool            `json:"spam"`
	Approved          bool            `json:"approved"`
	RemovedByCategory string          `json:"removed_by_category"`
	NumReports        int             `json:"num_reports"`
	UserReports       [][]interface{} `json:"user_reports"`
	ModReports        [][]interface{} `json:"mod_reports"`
	CrosspostParent   string          `json:"crosspost_parent"`
	Preview           *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

func (l listing) items() []*model.Item {
	out := make([]*model.Item, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		switch c.Kind {
		case "t3", "t1":
			out = append(out, c.Data.item(c.Kind))
		}
	}
	return out
}

func (d rawItem) item(kind string) *model.Item {
	it := &model.Item{
		ID:                d.Name,
		Kind:              model.KindComment,
		Title:             d.Title,
		Body:              d.Body,
		URL:               d.URL,
		Permalink:         d.Permalink,
		Author:            d.Author,
		Subreddit:         d.Subreddit,
		CreatedAt:         epoch(d.CreatedUTC),
		Flair:             d.LinkFlairText,
		AuthorFlair:       d.AuthorFlairText,
		Removed:           d.Removed,
		Spam:              d.Spam,
		Approved:          d.Approved,
		RemovedByCategory: d.RemovedByCategory,
		NumReports:        d.NumReports,
		UserReportReasons: reportReasons(d.UserReports),
		ModReportReasons:  reportReasons(d.ModReports),
		CrosspostParentID: d.CrosspostParent,
	}
	if kind == "t3" {
		it.Kind = model.KindPost
		it.Body = d.Selftext
		if strings.HasPrefix(d.Thumbnail, "http") {
			it.Thumbnail = d.Thumbnail
		}
		if d.Preview != nil && len(d.Preview.Images) > 0 {
			it.PreviewURL = html.UnescapeString(d.Preview.Images[0].Source.URL)
		}
	}
	return it
}

// reportReasons takes the first element of each [reason, count|mod] pair.
func reportReasons(pairs [][]interface{}) []string {
	var out []string
	for _, p := range pairs {
		if len(p) == 0 {
			continue
		}
		if s, ok := p[0].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func epoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}
