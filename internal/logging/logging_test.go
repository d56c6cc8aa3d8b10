package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifrs9-ecl/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestHelpersAddFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithScenario(WithComponent(logger, "engine"), "pessimistic")
	LogItemFailure(l, "LN-1", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "LN-1", entry["item_id"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "pessimistic", entry["scenario"])
	assert.Equal(t, "item_failure", entry["event"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"item_id"`)))
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ecl.log")
	logger := NewLoggerWithConfig(config.LogConfig{
		Level:    "debug",
		File:     true,
		FilePath: path,
		MaxSize:  1,
	})

	LogStageMigration(logger, "LN-2", "Stage 1", "Stage 2")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage_migration")
}
