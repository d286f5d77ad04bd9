package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		" info": slog.LevelInfo,
	}

	for input, expected := range cases {
		level, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, level, input)
	}

	_, err := ParseLevel("loud")
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.True(t, errors.Is(Config{Level: "info", Format: "xml"}.Validate(), ErrInvalidFormat))
	assert.True(t, errors.Is(Config{Level: "chatty"}.Validate(), ErrInvalidLevel))
}

func TestNew(t *testing.T) {
	t.Run("console honors the level", func(t *testing.T) {
		console := &bytes.Buffer{}
		logger, closer, err := New(Config{Level: "info", Format: FormatText}, console)
		require.NoError(t, err)
		defer closer.Close()

		logger.Debug("hidden")
		logger.Info("servo registered", "id", 1)

		assert.NotContains(t, console.String(), "hidden")
		assert.Contains(t, console.String(), "msg=\"servo registered\" id=1")
	})

	t.Run("json console", func(t *testing.T) {
		console := &bytes.Buffer{}
		logger, _, err := New(Config{Level: "debug", Format: FormatJSON}, console)
		require.NoError(t, err)

		logger.Debug("malformed frame discarded")

		var record map[string]any
		require.NoError(t, json.Unmarshal(console.Bytes(), &record))
		assert.Equal(t, "malformed frame discarded", record["msg"])
		assert.Equal(t, "DEBUG", record["level"])
	})

	t.Run("records fan out to the log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "servoemu.log")
		console := &bytes.Buffer{}

		logger, closer, err := New(Config{Level: "info", File: path}, console)
		require.NoError(t, err)

		logger.Warn("fault injected", "id", 3)
		require.NoError(t, closer.Close())

		assert.Contains(t, console.String(), "fault injected")

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var record map[string]any
		require.NoError(t, json.Unmarshal(data, &record))
		assert.Equal(t, "fault injected", record["msg"])
		assert.Equal(t, float64(3), record["id"])
	})

	t.Run("invalid config", func(t *testing.T) {
		_, _, err := New(Config{Level: "nope"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}
