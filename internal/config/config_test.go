package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/source"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, model.DefaultOptions(), cfg.Options())
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[search]
workers = 3
time_budget_ms = 500

[transcript]
skip_preamble = false

[[sources]]
name = "aider"
dir = "/logs/aider"
format = "generic"
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.General.DefaultDays)

	so := cfg.SearchOptions()
	assert.Equal(t, 3, so.Workers)
	assert.Equal(t, 500*time.Millisecond, so.TimeBudget)
	assert.Equal(t, int64(10<<20), so.LargeFileBytes)
	assert.False(t, cfg.Options().SkipPreamble)

	roots := cfg.Roots()
	last := roots[len(roots)-1]
	assert.Equal(t, source.Root{Name: "aider", Dir: "/logs/aider", Format: source.FormatGeneric}, last)
	assert.Contains(t, cfg.SourceNames(), "codex")
}

func TestLoadFrom_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[search\n"), 0o600))
	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.General.ClaudeDir = "/alt/claude"
	cfg.Assets.FilesPerSecond = 5
	require.NoError(t, SaveTo(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, filepath.Join("/alt/claude", "projects"), got.Roots()[0].Dir)
}

func TestDerivedOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Assets.MinPayloadChars = 200
	cfg.General.EagerParseMB = 2
	cfg.Logging.Debug = true

	assert.Equal(t, 200, cfg.AssetOptions().MinPayloadChars)
	assert.Equal(t, cfg.Assets.MatchBudget, cfg.AssetOptions().MatchBudget)
	assert.Equal(t, int64(2<<20), cfg.LoadOptions().EagerParseBytes)
	assert.True(t, cfg.LogConfig().Debug)
}

func TestConfigDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/agent-sessions/config.toml", ConfigPath())
}
