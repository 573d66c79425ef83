package channel

import "errors"

// ErrPromptMissing is returned when a channel has no transform prompt
// configured. Items on such a channel cannot be processed.
var ErrPromptMissing = errors.New("channel prompt is not configured")

type Config struct {
	Name     string   `yaml:"-"`
	FeedURL  string   `yaml:"feed_url"`
	DestCode string   `yaml:"dest_code"`
	Title    string   `yaml:"title"`
	Prompt   string   `yaml:"prompt"`
	Settings Settings `yaml:"settings"`
	Filters  []Filter `yaml:"filters"`
}

type Settings struct {
	Enabled  bool `yaml:"enabled"`
	MaxItems int  `yaml:"max_items"`
}

// Filter narrows which feed entries become candidates. Field selects what
// the rule inspects: "title" uses the include/exclude substrings, "duration"
// uses the min/max second bounds against the feed's media duration.
type Filter struct {
	Field      string   `yaml:"field"`
	Includes   []string `yaml:"includes"`
	Excludes   []string `yaml:"excludes"`
	MinSeconds int      `yaml:"min_seconds"`
	MaxSeconds int      `yaml:"max_seconds"`
}

// ResolvePrompt returns the channel's transform prompt or ErrPromptMissing.
func (c *Config) ResolvePrompt() (string, error) {
	if c.Prompt == "" {
		return "", ErrPromptMissing
	}
	return c.Prompt, nil
}
