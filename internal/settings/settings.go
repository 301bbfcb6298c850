// Package settings holds the per-installation notification settings. They
// are read from disk on every call so edits apply to the next task without a
// restart.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"

	"gopkg.in/yaml.v3"
)

type Provider interface {
	Load(ctx context.Context) (*Settings, error)
}

type Webhooks struct {
	NewPosts       string `yaml:"newPosts"`
	PublicNewPosts string `yaml:"publicNewPosts"`
	Removals       string `yaml:"removals"`
	Reports        string `yaml:"reports"`
	ModMail        string `yaml:"modmail"`
	ModLog         string `yaml:"modlog"`
	ModQueue       string `yaml:"modQueue"`
	ModAbuse       string `yaml:"modAbuse"`
	ModActivity    string `yaml:"modActivity"`
}

type Messages struct {
	NewPost          string `yaml:"newPost"`
	PublicNewPost    string `yaml:"publicNewPost"`
	RemovalModerator string `yaml:"removalModerator"`
	RemovalAutomatic string `yaml:"removalAutomatic"`
	RemovalAdmin     string `yaml:"removalAdmin"`
	RemovalSpam      string `yaml:"removalSpam"`
	Report           string `yaml:"report"`
	ModLog           string `yaml:"modlog"`
	ModMail          string `yaml:"modmail"`
	ModQueueReport   string `yaml:"modQueueReport"`
	ModQueueRemoval  string `yaml:"modQueueRemoval"`
	ModActivity      string `yaml:"modActivity"`
}

type ModAbuse struct {
	Message          string   `yaml:"message"`
	TimeframeMinutes int      `yaml:"timeframeMinutes"`
	Threshold        int      `yaml:"threshold"`
	Actions          []string `yaml:"actions"`
}

type Settings struct {
	Webhooks Webhooks `yaml:"webhooks"`
	Messages Messages `yaml:"messages"`

	AutomaticRemovalUsers       []string `yaml:"automaticRemovalUsers"`
	AutomaticRemovalUsersCustom string   `yaml:"automaticRemovalUsersCustom"`
	RemovalIgnoreAuthor         string   `yaml:"removalIgnoreAuthor"`
	RemovalsScanSpam            bool     `yaml:"removalsScanSpam"`

	// ModlogActions limits which actions reach the mod log channel. Empty
	// means every action.
	ModlogActions        []string `yaml:"modlogActions"`
	ModlogCustomMessages string   `yaml:"modlogCustomMessages"`

	ModAbuse ModAbuse `yaml:"modAbuse"`

	ModActivityCheckPosts    *bool `yaml:"modActivityCheckPosts"`
	ModActivityCheckComments *bool `yaml:"modActivityCheckComments"`

	ModmailAuthorIgnored  string `yaml:"modmailAuthorIgnored"`
	AllowAppNotifications bool   `yaml:"allowAppNotifications"`

	FlairWatchConfig string `yaml:"flairWatchConfig"`
}

var (
	defaultAutomatic     = []string{"automoderator", "reddit"}
	defaultAbuseActions  = []string{"banuser", "removelink", "spamlink", "removecomment"}
	defaultAbuseMessage  = "**Possible Mod Abuse Warning** @here"
	defaultSpamReason    = "Item was silently removed or marked as spam by Reddit."
	defaultMessageValues = Messages{
		NewPost:          "New Post",
		PublicNewPost:    "New Post",
		RemovalModerator: "REMOVED by Moderator",
		RemovalAutomatic: "REMOVED Automatically",
		RemovalAdmin:     "REMOVED by Reddit Admin (@here)",
		RemovalSpam:      "Silently REMOVED by Reddit",
		Report:           "New Report",
		ModLog:           "New Mod Log Entry",
		ModMail:          "New Modmail Message (@here)",
		ModQueueReport:   "New Item Requiring Review due to **Report**",
		ModQueueRemoval:  "New Item Requiring Review due to **Removal**",
		ModActivity:      "New Moderator Activity",
	}
)

// DefaultSpamReason is the removal reason shown when the platform removed an
// item without a log entry.
func DefaultSpamReason() string { return defaultSpamReason }

func (s *Settings) applyDefaults() {
	m := &s.Messages
	d := defaultMessageValues
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&m.NewPost, d.NewPost},
		{&m.PublicNewPost, d.PublicNewPost},
		{&m.RemovalModerator, d.RemovalModerator},
		{&m.RemovalAutomatic, d.RemovalAutomatic},
		{&m.RemovalAdmin, d.RemovalAdmin},
		{&m.RemovalSpam, d.RemovalSpam},
		{&m.Report, d.Report},
		{&m.ModLog, d.ModLog},
		{&m.ModMail, d.ModMail},
		{&m.ModQueueReport, d.ModQueueReport},
		{&m.ModQueueRemoval, d.ModQueueRemoval},
		{&m.ModActivity, d.ModActivity},
		{&s.ModAbuse.Message, defaultAbuseMessage},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
	if s.AutomaticRemovalUsers == nil {
		s.AutomaticRemovalUsers = defaultAutomatic
	}
	if s.ModAbuse.TimeframeMinutes <= 0 {
		s.ModAbuse.TimeframeMinutes = 10
	}
	if s.ModAbuse.Threshold <= 0 {
		s.ModAbuse.Threshold = 20
	}
	if len(s.ModAbuse.Actions) == 0 {
		s.ModAbuse.Actions = defaultAbuseActions
	}
}

// Default returns settings with every channel disabled.
func Default() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// Webhook returns the endpoint configured for a channel class, or "" when
// the channel is disabled. Flair-watch endpoints live in the flair rules.
func (s *Settings) Webhook(class model.ChannelClass) string {
	w := s.Webhooks
	var url string
	switch class {
	case model.ChannelNewPosts:
		url = w.NewPosts
	case model.ChannelPublicNewPosts:
		url = w.PublicNewPosts
	case model.ChannelRemovals:
		url = w.Removals
	case model.ChannelReports:
		url = w.Reports
	case model.ChannelModMail:
		url = w.ModMail
	case model.ChannelModLog:
		url = w.ModLog
	case model.ChannelModQueue:
		url = w.ModQueue
	case model.ChannelModActivity:
		url = w.ModActivity
	}
	return strings.TrimSpace(url)
}

// RemovalTexts returns the removal notification texts indexed by remover
// kind: 0 moderator, 1 automatic, 2 admin, 3 spam.
func (s *Settings) RemovalTexts() [4]string {
	m := s.Messages
	return [4]string{m.RemovalModerator, m.RemovalAutomatic, m.RemovalAdmin, m.RemovalSpam}
}

// AutomatedUsers is the lower-cased union of the selected and custom
// automatic accounts.
func (s *Settings) AutomatedUsers() []string {
	out := make([]string, 0, len(s.AutomaticRemovalUsers))
	for _, u := range s.AutomaticRemovalUsers {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			out = append(out, u)
		}
	}
	return append(out, SplitList(s.AutomaticRemovalUsersCustom)...)
}

func (s *Settings) IgnoredRemovalAuthors() []string { return SplitList(s.RemovalIgnoreAuthor) }
func (s *Settings) IgnoredModmailAuthors() []string { return SplitList(s.ModmailAuthorIgnored) }

func (s *Settings) LogsAction(action string) bool {
	if len(s.ModlogActions) == 0 {
		return true
	}
	for _, a := range s.ModlogActions {
		if a == action {
			return true
		}
	}
	return false
}

func (s *Settings) CheckModPosts() bool {
	return s.ModActivityCheckPosts == nil || *s.ModActivityCheckPosts
}

func (s *Settings) CheckModComments() bool {
	return s.ModActivityCheckComments == nil || *s.ModActivityCheckComments
}

func (s *Settings) AbuseWindow() time.Duration {
	return time.Duration(s.ModAbuse.TimeframeMinutes) * time.Minute
}

// SplitList parses a ';'-separated list of user names, lower-cased.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ";") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Contains reports whether name is in a lower-cased list.
func Contains(list []string, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// FileProvider reads a YAML settings file.
type FileProvider struct {
	path   string
	logger *log.Logger
}

func NewFileProvider(path string, logger *log.Logger) *FileProvider {
	return &FileProvider{path: path, logger: logger.Named("settings")}
}

// Load reads the file. A missing file yields the defaults, which leave
// every channel disabled.
func (p *FileProvider) Load(ctx context.Context) (*Settings, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warnw("Settings file missing, all channels disabled", "path", p.path)
			return Default(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.applyDefaults()
	return s, nil
}

// Static always returns the same settings. Used by tests and one-shot
// commands.
type Static struct{ S *Settings }

func (p Static) Load(context.Context) (*Settings, error) {
	if p.S == nil {
		return Default(), nil
	}
	cp := *p.S
	cp.applyDefaults()
	return &cp, nil
}
