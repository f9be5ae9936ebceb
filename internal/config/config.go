// Package config loads the viewer configuration: server endpoint, polling
// cadence, and presentation tuning.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "5s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	// ServerURL is the bead graph server, for both the query API and the
	// event feed.
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`

	// PollInterval is the periodic graph refresh cadence.
	PollInterval Duration `yaml:"poll_interval"`
	// FrameInterval is the engine tick length.
	FrameInterval Duration `yaml:"frame_interval"`
	// RefreshQuiet is the mutation debounce quiet period.
	RefreshQuiet Duration `yaml:"refresh_quiet"`

	// TetherStrength is the agent-tether force scalar, clamped to [0,1].
	TetherStrength float64 `yaml:"tether_strength"`
	// LabelBudget is how many labels may render per frame outside a focus.
	LabelBudget int `yaml:"label_budget"`

	// Streams overrides the subject allowlist patterns when non-empty.
	Streams []string `yaml:"streams"`
}

func Default() Config {
	return Config{
		ServerURL:      "http://localhost:7339",
		PollInterval:   Duration(5 * time.Second),
		FrameInterval:  Duration(33 * time.Millisecond),
		RefreshQuiet:   Duration(500 * time.Millisecond),
		TetherStrength: 0.5,
		LabelBudget:    40,
	}
}

// Load reads the config file at path, layering it over defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url required")
	}
	if c.TetherStrength < 0 || c.TetherStrength > 1 {
		return fmt.Errorf("tether_strength must be within [0,1], got %v", c.TetherStrength)
	}
	if c.LabelBudget < 0 {
		return fmt.Errorf("label_budget must be non-negative, got %d", c.LabelBudget)
	}
	if c.PollInterval <= 0 || c.FrameInterval <= 0 || c.RefreshQuiet <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}
