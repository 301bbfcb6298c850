package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FlairRule is one flair-watch entry.
type FlairRule struct {
	Flair        string `json:"flair"`
	Post         bool   `json:"post"`
	Comment      bool   `json:"comment"`
	Webhook      string `json:"webhook"`
	PublicFormat bool   `json:"publicFormat"`
}

// ModlogMessage overrides the mod-log text for one action.
type ModlogMessage struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

const flairSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["flair", "webhook"],
    "properties": {
      "flair": {"type": "string", "minLength": 1},
      "post": {"type": "boolean"},
      "comment": {"type": "boolean"},
      "webhook": {
        "type": "string",
        "pattern": "^https://(ptb\\.|canary\\.)?discord(app)?\\.com/api/webhooks/[0-9]+/[a-zA-Z0-9_-]+$"
      },
      "publicFormat": {"type": "boolean"}
    }
  }
}`

const modlogSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["action", "message"],
    "properties": {
      "action": {"type": "string", "minLength": 1},
      "message": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	compileOnce sync.Once
	flairSch    *jsonschema.Schema
	modlogSch   *jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	for name, src := range map[string]string{"flairwatch.json": flairSchema, "modlog.json": modlogSchema} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			compileErr = fmt.Errorf("parse %s: %w", name, err)
			return
		}
		if err := c.AddResource(name, doc); err != nil {
			compileErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	if flairSch, compileErr = c.Compile("flairwatch.json"); compileErr != nil {
		return
	}
	modlogSch, compileErr = c.Compile("modlog.json")
}

func validate(sch func() *jsonschema.Schema, raw string, dst any) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := sch().Validate(inst); err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dst)
}

// FlairRules parses and validates the flair-watch config. No config yields
// no rules; an invalid one yields an error and the caller disables the
// feature.
func (s *Settings) FlairRules() ([]FlairRule, error) {
	raw := strings.TrimSpace(s.FlairWatchConfig)
	if raw == "" {
		return nil, nil
	}
	var rules []FlairRule
	if err := validate(func() *jsonschema.Schema { return flairSch }, raw, &rules); err != nil {
		return nil, fmt.Errorf("flair watch config: %w", err)
	}
	for i := range rules {
		rules[i].Webhook = strings.TrimSpace(rules[i].Webhook)
	}
	return rules, nil
}

// ModLogText returns the custom text for action, falling back to the
// default mod-log text when none is set or the overrides are invalid.
func (s *Settings) ModLogText(action string) (string, error) {
	raw := strings.TrimSpace(s.ModlogCustomMessages)
	if raw == "" {
		return s.Messages.ModLog, nil
	}
	var overrides []ModlogMessage
	if err := validate(func() *jsonschema.Schema { return modlogSch }, raw, &overrides); err != nil {
		return s.Messages.ModLog, fmt.Errorf("modlog custom messages: %w", err)
	}
	for _, o := range overrides {
		if o.Action == action {
			return o.Message, nil
		}
	}
	return s.Messages.ModLog, nil
}
