// Package config holds the monitoring session configuration: watch roots,
// debounce and idle thresholds, deep-review limits, fix retention, and the
// browser ingest listen address.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WatchRoot is a directory to monitor, with an allow-list of file
// extensions and a deny-list of path globs. Immutable for the lifetime of
// a session.
type WatchRoot struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	DenyGlobs  []string `yaml:"deny_globs"`
}

// Allowed reports whether a path under the root should be watched.
// Deny globs are evaluated first: a denied path is never watched
// regardless of extension.
func (w *WatchRoot) Allowed(path string) bool {
	rel, err := filepath.Rel(w.Dir, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, glob := range w.DenyGlobs {
		if matched, _ := filepath.Match(glob, rel); matched {
			return false
		}
		// A glob naming a directory denies everything beneath it.
		for _, part := range strings.Split(rel, "/") {
			if matched, _ := filepath.Match(glob, part); matched {
				return false
			}
		}
	}

	if len(w.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range w.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// CommitMode selects how applied fixes become version-control commits.
type CommitMode string

const (
	CommitManual       CommitMode = "manual"
	CommitPerFix       CommitMode = "per_fix"
	CommitEndOfSession CommitMode = "end_of_session"
)

// Config is the full session configuration.
type Config struct {
	// WatchRoots are the directories to monitor.
	WatchRoots []WatchRoot

	// DebounceWindow is the per-path quiet window before a change event
	// is emitted. Default: 500ms.
	DebounceWindow time.Duration
	// RapidSaveThreshold is the number of saves within one second that
	// flags a path as rapid iteration. Default: 5.
	RapidSaveThreshold int
	// IdleThreshold is how long without file events before the operator
	// counts as idle. Default: 30s.
	IdleThreshold time.Duration

	// ClassifyTimeout bounds one pattern pass over a single change.
	// Default: 750ms.
	ClassifyTimeout time.Duration
	// ClassifyWorkers caps the classification worker pool. Default:
	// GOMAXPROCS capped at 4.
	ClassifyWorkers int

	// DeepReviewLineThreshold triggers a deep review when a single change
	// touches more lines than this. Default: 100.
	DeepReviewLineThreshold int
	// DeepReviewTimeout is the hard timeout on one completion call.
	// Default: 90s.
	DeepReviewTimeout time.Duration
	// DeepReviewModel names the completion model.
	DeepReviewModel string
	// SecuritySensitiveGlobs name paths that get a deep review even when
	// the pattern pass found nothing.
	SecuritySensitiveGlobs []string

	// IngestAddr is the loopback address for the browser ingest endpoint.
	// Default: 127.0.0.1:7177.
	IngestAddr string

	// CommitMode controls commit generation. Default: manual.
	CommitMode CommitMode

	// BackupRetention is the maximum number of fix backups kept before
	// the oldest undone records are pruned. Default: 100.
	BackupRetention int

	// StateDir holds the ledger database, fix backups, and session logs.
	// Default: .vigil under the first watch root.
	StateDir string

	// AnthropicAPIKey is read from the environment, never from the file.
	AnthropicAPIKey string
}

// yamlConfig mirrors Config for file loading. Durations are strings
// ("500ms", "30s") parsed with time.ParseDuration.
type yamlConfig struct {
	WatchRoots              []WatchRoot `yaml:"watch_roots"`
	DebounceWindow          string      `yaml:"debounce_window,omitempty"`
	RapidSaveThreshold      *int        `yaml:"rapid_save_threshold,omitempty"`
	IdleThreshold           string      `yaml:"idle_threshold,omitempty"`
	ClassifyTimeout         string      `yaml:"classify_timeout,omitempty"`
	ClassifyWorkers         *int        `yaml:"classify_workers,omitempty"`
	DeepReviewLineThreshold *int        `yaml:"deep_review_line_threshold,omitempty"`
	DeepReviewTimeout       string      `yaml:"deep_review_timeout,omitempty"`
	DeepReviewModel         string      `yaml:"deep_review_model,omitempty"`
	SecuritySensitiveGlobs  []string    `yaml:"security_sensitive_globs,omitempty"`
	IngestAddr              string      `yaml:"ingest_addr,omitempty"`
	CommitMode              string      `yaml:"commit_mode,omitempty"`
	BackupRetention         *int        `yaml:"backup_retention,omitempty"`
	StateDir                string      `yaml:"state_dir,omitempty"`
}

// DefaultConfig returns the configuration defaults. Watch roots must be
// supplied by the caller or the config file.
func DefaultConfig() *Config {
	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	return &Config{
		DebounceWindow:          500 * time.Millisecond,
		RapidSaveThreshold:      5,
		IdleThreshold:           30 * time.Second,
		ClassifyTimeout:         750 * time.Millisecond,
		ClassifyWorkers:         workers,
		DeepReviewLineThreshold: 100,
		DeepReviewTimeout:       90 * time.Second,
		DeepReviewModel:         "claude-sonnet-4-5",
		SecuritySensitiveGlobs:  []string{"*auth*", "*payment*", "*billing*", "*login*"},
		IngestAddr:              "127.0.0.1:7177",
		CommitMode:              CommitManual,
		BackupRetention:         100,
	}
}

// Load reads a YAML config file and merges it over the defaults. The
// Anthropic API key is picked up from VIGIL_ANTHROPIC_API_KEY, falling
// back to ANTHROPIC_API_KEY.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var file yamlConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := file.apply(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.AnthropicAPIKey = apiKeyFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply merges file values over the defaults in cfg.
func (f *yamlConfig) apply(cfg *Config) error {
	if len(f.WatchRoots) > 0 {
		cfg.WatchRoots = f.WatchRoots
	}
	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{f.DebounceWindow, &cfg.DebounceWindow, "debounce_window"},
		{f.IdleThreshold, &cfg.IdleThreshold, "idle_threshold"},
		{f.ClassifyTimeout, &cfg.ClassifyTimeout, "classify_timeout"},
		{f.DeepReviewTimeout, &cfg.DeepReviewTimeout, "deep_review_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, d.raw, err)
		}
		*d.dst = parsed
	}
	if f.RapidSaveThreshold != nil {
		cfg.RapidSaveThreshold = *f.RapidSaveThreshold
	}
	if f.ClassifyWorkers != nil {
		cfg.ClassifyWorkers = *f.ClassifyWorkers
	}
	if f.DeepReviewLineThreshold != nil {
		cfg.DeepReviewLineThreshold = *f.DeepReviewLineThreshold
	}
	if f.DeepReviewModel != "" {
		cfg.DeepReviewModel = f.DeepReviewModel
	}
	if len(f.SecuritySensitiveGlobs) > 0 {
		cfg.SecuritySensitiveGlobs = f.SecuritySensitiveGlobs
	}
	if f.IngestAddr != "" {
		cfg.IngestAddr = f.IngestAddr
	}
	if f.CommitMode != "" {
		cfg.CommitMode = CommitMode(f.CommitMode)
	}
	if f.BackupRetention != nil {
		cfg.BackupRetention = *f.BackupRetention
	}
	if f.StateDir != "" {
		cfg.StateDir = f.StateDir
	}
	return nil
}

func apiKeyFromEnv() string {
	if key := os.Getenv("VIGIL_ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.WatchRoots) == 0 {
		return fmt.Errorf("at least one watch root is required")
	}
	for i, root := range c.WatchRoots {
		if root.Dir == "" {
			return fmt.Errorf("watch root %d has no directory", i)
		}
		info, err := os.Stat(root.Dir)
		if err != nil {
			return fmt.Errorf("watch root %s: %w", root.Dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("watch root %s is not a directory", root.Dir)
		}
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("debounce window must be positive, got %v", c.DebounceWindow)
	}
	if c.RapidSaveThreshold < 2 {
		return fmt.Errorf("rapid save threshold must be at least 2, got %d", c.RapidSaveThreshold)
	}
	if c.ClassifyWorkers < 1 {
		return fmt.Errorf("classify workers must be at least 1, got %d", c.ClassifyWorkers)
	}
	if c.BackupRetention < 1 {
		return fmt.Errorf("backup retention must be at least 1, got %d", c.BackupRetention)
	}
	switch c.CommitMode {
	case CommitManual, CommitPerFix, CommitEndOfSession:
	default:
		return fmt.Errorf("unknown commit mode %q", c.CommitMode)
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.WatchRoots[0].Dir, ".vigil")
	}
	return nil
}

// SecuritySensitive reports whether a path matches the configured
// security-sensitive globs (matched against each path segment and the
// base name, case-insensitively).
func (c *Config) SecuritySensitive(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	parts := strings.Split(lower, "/")
	for _, glob := range c.SecuritySensitiveGlobs {
		for _, part := range parts {
			if matched, _ := filepath.Match(glob, part); matched {
				return true
			}
			// Match against the segment without its extension too.
			trimmed := strings.TrimSuffix(part, filepath.Ext(part))
			if matched, _ := filepath.Match(glob, trimmed); matched {
				return true
			}
		}
	}
	return false
}
