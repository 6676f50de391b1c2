package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Priority is a source's scheduling tier (spec.md §4.E).
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// defaultIntervalMinutes maps priority tiers to their scheduling interval,
// overridable per source by an explicit IntervalMinutes.
var defaultIntervalMinutes = map[Priority]int{
	PriorityHigh:   5,
	PriorityNormal: 20,
	PriorityLow:    55,
}

// Filtering controls which upstream items a source pipeline drops before
// the edit-detection/publish stage.
type Filtering struct {
	SkipReplies  bool `yaml:"skip_replies"`
	SkipRetweets bool `yaml:"skip_retweets"`
	SkipQuotes   bool `yaml:"skip_quotes"`
}

// ThreadHandling controls how the pipeline treats upstream self-reply chains.
type ThreadHandling struct {
	Mode string `yaml:"mode"` // "preserve" | "flatten"
}

// Target names the downstream account a source publishes to.
type Target struct {
	AccountID string `yaml:"account_id" validate:"required"`
}

// Source is one entry in the configuration surface described in spec.md §6.
// Unrecognized keys are carried in Extra for forward compatibility (§9
// "dynamic configuration").
type Source struct {
	ID        string   `yaml:"id" validate:"required"`
	Platform  string   `yaml:"platform" validate:"required,oneof=twitterscrape atproto feed video"`
	Enabled   bool     `yaml:"enabled"`
	Handle    string   `yaml:"handle"`
	FeedURL   string   `yaml:"feed_url"`
	Target    Target   `yaml:"target" validate:"required"`
	Priority  Priority `yaml:"priority" validate:"required,oneof=high normal low"`
	Interval  *int     `yaml:"interval_minutes"`
	MaxPosts  int      `yaml:"max_posts_per_run" validate:"required,min=1"`
	DailyCap  *int     `yaml:"daily_post_cap"`
	SkipHours []int    `yaml:"skip_hours"`

	Filtering      Filtering      `yaml:"filtering"`
	ThreadHandling ThreadHandling `yaml:"thread_handling"`
	Visibility     string         `yaml:"visibility"`

	// Extra carries any key this struct doesn't recognize, keeping the
	// core forward-compatible with operator config it has no opinion on.
	Extra map[string]interface{} `yaml:"-"`
}

// IntervalMinutes resolves the source's effective scheduling interval:
// the explicit override if set, else the priority tier's default.
func (s Source) IntervalMinutes() int {
	if s.Interval != nil && *s.Interval > 0 {
		return *s.Interval
	}
	if m, ok := defaultIntervalMinutes[s.Priority]; ok {
		return m
	}
	return defaultIntervalMinutes[PriorityNormal]
}

// SkipsHour reports whether fetch should be skipped at the given local hour.
func (s Source) SkipsHour(hour int) bool {
	for _, h := range s.SkipHours {
		if h == hour {
			return true
		}
	}
	return false
}

type sourcesFile struct {
	Sources []yaml.Node `yaml:"sources"`
}

var validate = validator.New()

// LoadSources decodes a YAML sources file into validated Source entries.
// Each raw mapping node is decoded twice: once into the typed struct, once
// into a generic map, so any key the struct doesn't name survives in Extra.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source config: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	sources := make([]Source, 0, len(file.Sources))
	for i, node := range file.Sources {
		var s Source
		if err := node.Decode(&s); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}

		var generic map[string]interface{}
		if err := node.Decode(&generic); err == nil {
			s.Extra = extraKeys(generic)
		}

		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("source[%d] (%s): %w", i, s.ID, err)
		}

		sources = append(sources, s)
	}

	return sources, nil
}

var knownKeys = map[string]bool{
	"id": true, "platform": true, "enabled": true, "handle": true,
	"feed_url": true, "target": true, "priority": true,
	"interval_minutes": true, "max_posts_per_run": true,
	"daily_post_cap": true, "skip_hours": true, "filtering": true,
	"thread_handling": true, "visibility": true,
}

func extraKeys(generic map[string]interface{}) map[string]interface{} {
	extra := make(map[string]interface{})
	for k, v := range generic {
		if !knownKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
