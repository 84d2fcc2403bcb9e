package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{LogLevel: zerolog.InfoLevel, Type: JSONLogger, Output: &buf})

	Storage.Debug().Msg("hidden")
	Storage.Info().Str("path", "/tmp/db").Msg("opened")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "storage", entry["component"])
	assert.Equal(t, "opened", entry["message"])
	assert.Equal(t, "/tmp/db", entry["path"])
}

func TestInitConsole(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{LogLevel: zerolog.DebugLevel, Type: ConsoleLogger, Output: &buf})

	Remote.Debug().Msg("accepted")
	assert.Contains(t, buf.String(), `message: "accepted"`)
	assert.Contains(t, buf.String(), `"component": "remote"`)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
