package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestInit_WritesJSONToDir(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Dir: dir, Level: "debug"})
	defer Shutdown()

	Logger().Info("test_message", "key", "value")

	recs := readRecords(t, filepath.Join(dir, "agent-sessions.log"))
	require.Len(t, recs, 1)
	assert.Equal(t, "test_message", recs[0]["msg"])
	assert.Equal(t, "value", recs[0]["key"])
}

func TestInit_DiscardsWithoutDir(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	Shutdown()
	Init(Config{})
	defer Shutdown()

	assert.NotNil(t, Logger())
	Logger().Info("this goes nowhere")
	_, err := os.Stat(filepath.Join(state, "agent-sessions", "agent-sessions.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestForComponent_CreatedBeforeInit(t *testing.T) {
	Shutdown()
	log := ForComponent(CompSearch).With("run", 7)

	dir := t.TempDir()
	Init(Config{Dir: dir, Level: "info"})
	defer Shutdown()

	log.Debug("hidden")
	log.Warn("scan_skipped", "path", "/tmp/x.jsonl")

	recs := readRecords(t, filepath.Join(dir, "agent-sessions.log"))
	require.Len(t, recs, 1)
	assert.Equal(t, "search", recs[0]["component"])
	assert.Equal(t, "scan_skipped", recs[0]["msg"])
	assert.EqualValues(t, 7, recs[0]["run"])
}

func TestInit_TextFormat(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Dir: dir, Format: "text"})
	defer Shutdown()

	ForComponent(CompStore).Info("opened")
	data, err := os.ReadFile(filepath.Join(dir, "agent-sessions.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=store")
	assert.Contains(t, string(data), "msg=opened")
}
