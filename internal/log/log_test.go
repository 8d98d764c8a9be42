package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, "debug", GetLogLevel())

	LogInfoWithFields("auth", "login started", map[string]any{"next_url": "/details/5"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login started", entry["msg"])
	assert.Equal(t, "auth", entry["component"])
	assert.Equal(t, "/details/5", entry["next_url"])
	assert.Contains(t, entry, "timestamp")
}

func TestConfigure_Invalid(t *testing.T) {
	err := Configure("loud", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	err = Configure("", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestTraceSuppressedAboveTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("debug", "text"))
	LogTraceWithFields("session", "cookie written", nil)
	assert.Empty(t, buf.String())

	require.NoError(t, Configure("trace", "text"))
	LogTraceWithFields("session", "cookie written", nil)
	assert.Contains(t, buf.String(), "level=TRACE")
}
