package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWritesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)

	Error("fetch failed", errors.New("boom"), "source", "synced", "count", 3, "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "fetch failed", line["message"])
	assert.Equal(t, "boom", line["err"])
	assert.Equal(t, "synced", line["source"])
	assert.EqualValues(t, 3, line["count"])
	assert.NotContains(t, line, "dangling")
}

func TestLogRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelError)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Debug("hidden")
	Info("hidden too")
	assert.Empty(t, strings.TrimSpace(buf.String()))

	Error("shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
