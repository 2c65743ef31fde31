// Package config loads and saves the TOML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jazzyalex/agent-sessions/internal/assets"
	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/source"
)

// Config holds all agent-sessions configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Sources    []SourceConfig   `toml:"sources,omitempty"`
	Search     SearchConfig     `toml:"search"`
	Transcript TranscriptConfig `toml:"transcript"`
	Assets     AssetsConfig     `toml:"assets"`
	Logging    LoggingConfig    `toml:"logging"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DefaultDays      int    `toml:"default_days"`
	IncludeSubagents bool   `toml:"include_subagents"`
	EagerParseMB     int    `toml:"eager_parse_mb"`
	Watch            bool   `toml:"watch"`
	ClaudeDir        string `toml:"claude_dir,omitempty"`
	CodexDir         string `toml:"codex_dir,omitempty"`
}

// SourceConfig declares an extra log directory.
type SourceConfig struct {
	Name   string `toml:"name"`
	Dir    string `toml:"dir"`
	Format string `toml:"format,omitempty"`
}

// SearchConfig tunes the search coordinator.
type SearchConfig struct {
	LargeFileMB    int  `toml:"large_file_mb"`
	Workers        int  `toml:"workers"`
	MaxResults     int  `toml:"max_results"`
	TimeBudgetMS   int  `toml:"time_budget_ms"`
	MaxOccurrences int  `toml:"max_occurrences"`
	DeepByDefault  bool `toml:"deep_by_default"`
}

// TranscriptConfig controls how sessions are laid out for reading.
type TranscriptConfig struct {
	SkipPreamble     bool `toml:"skip_preamble"`
	DedupeToolGroups bool `toml:"dedupe_tool_groups"`
}

// AssetsConfig bounds inline image scanning.
type AssetsConfig struct {
	ByteBudget      int     `toml:"byte_budget"`
	MatchBudget     int     `toml:"match_budget"`
	MinPayloadChars int     `toml:"min_payload_chars"`
	FilesPerSecond  float64 `toml:"files_per_second"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Dir        string `toml:"dir,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Debug      bool   `toml:"debug"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	opts := model.DefaultOptions()
	so := search.DefaultOptions()
	return Config{
		General: GeneralConfig{
			DefaultDays:      30,
			IncludeSubagents: false,
			EagerParseMB:     pipeline.DefaultEagerParseBytes >> 20,
			Watch:            true,
		},
		Search: SearchConfig{
			LargeFileMB:    int(so.LargeFileBytes >> 20),
			Workers:        so.Workers,
			MaxResults:     so.MaxResults,
			TimeBudgetMS:   int(so.TimeBudget / time.Millisecond),
			MaxOccurrences: so.MaxOccurrences,
		},
		Transcript: TranscriptConfig{
			SkipPreamble:     opts.SkipPreamble,
			DedupeToolGroups: opts.DedupeToolGroups,
		},
		Assets: AssetsConfig{
			ByteBudget:      opts.AssetScanByteBudget,
			MatchBudget:     opts.AssetScanMatchBudget,
			MinPayloadChars: 100,
			FilesPerSecond:  20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agent-sessions")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agent-sessions")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file at path. Keys absent from the file keep
// their defaults.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's config file
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path with owner-only permissions.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path is the user's config file
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// Options returns the transcript and asset-scan options.
func (c Config) Options() model.Options {
	return model.Options{
		SkipPreamble:         c.Transcript.SkipPreamble,
		DedupeToolGroups:     c.Transcript.DedupeToolGroups,
		AssetScanByteBudget:  c.Assets.ByteBudget,
		AssetScanMatchBudget: c.Assets.MatchBudget,
	}
}

// SearchOptions returns the search coordinator options.
func (c Config) SearchOptions() search.Options {
	so := search.DefaultOptions()
	if c.Search.Workers > 0 {
		so.Workers = c.Search.Workers
	}
	if c.Search.LargeFileMB > 0 {
		so.LargeFileBytes = int64(c.Search.LargeFileMB) << 20
	}
	so.MaxResults = c.Search.MaxResults
	so.TimeBudget = time.Duration(c.Search.TimeBudgetMS) * time.Millisecond
	if c.Search.MaxOccurrences > 0 {
		so.MaxOccurrences = c.Search.MaxOccurrences
	}
	return so
}

// AssetOptions returns the inline asset scan options.
func (c Config) AssetOptions() assets.Options {
	ao := assets.OptionsFrom(c.Options())
	if c.Assets.MinPayloadChars > 0 {
		ao.MinPayloadChars = c.Assets.MinPayloadChars
	}
	return ao
}

// LoadOptions returns the catalog loading options.
func (c Config) LoadOptions() pipeline.LoadOptions {
	lo := pipeline.LoadOptions{IncludeSubagents: c.General.IncludeSubagents}
	if c.General.EagerParseMB > 0 {
		lo.EagerParseBytes = int64(c.General.EagerParseMB) << 20
	}
	return lo
}

// LogConfig returns the logging configuration.
func (c Config) LogConfig() logging.Config {
	return logging.Config{
		Dir:        c.Logging.Dir,
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		Debug:      c.Logging.Debug,
	}
}

// Roots returns the log directories to scan: the built-in agents, with
// their directories overridden when configured, plus any extra sources.
func (c Config) Roots() []source.Root {
	home, _ := os.UserHomeDir()
	roots := source.DefaultRoots(home)
	for i := range roots {
		switch roots[i].Name {
		case "claude":
			if c.General.ClaudeDir != "" {
				roots[i].Dir = filepath.Join(c.General.ClaudeDir, "projects")
			}
		case "codex":
			if c.General.CodexDir != "" {
				roots[i].Dir = filepath.Join(c.General.CodexDir, "sessions")
			}
		}
	}
	for _, s := range c.Sources {
		if s.Name == "" || s.Dir == "" {
			continue
		}
		roots = append(roots, source.Root{Name: s.Name, Dir: s.Dir, Format: source.Format(s.Format)})
	}
	return roots
}

// SourceNames lists the names of every configured root.
func (c Config) SourceNames() []string {
	roots := c.Roots()
	names := make([]string, len(roots))
	for i, r := range roots {
		names[i] = r.Name
	}
	return names
}
