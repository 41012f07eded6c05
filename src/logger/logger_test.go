package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"WARNING":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"CRITICAL": zerolog.FatalLevel,
		"":         zerolog.InfoLevel,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, "DEBUG", "Upstream")

	l.With("market", "stocks").Error("connection failed: %v", "eof")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "error", line["level"])
	require.Equal(t, "Upstream", line["component"])
	require.Equal(t, "stocks", line["market"])
	require.Equal(t, "connection failed: eof", line["message"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, "WARNING", "Hub")

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warning("shown")

	out := strings.TrimSpace(buf.String())
	require.Equal(t, 1, strings.Count(out, "\n")+1)
	require.Contains(t, out, "shown")
}

func TestNamedKeepsOutput(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerWithWriter(&buf, "INFO", "Relay")

	root.Named("Registry").Info("ready")

	require.Contains(t, buf.String(), `"component":"Registry"`)
}
