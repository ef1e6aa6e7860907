package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: level, Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })
	return &buf
}

func TestCtx_AddsCorrelationID(t *testing.T) {
	buf := capture(t, "info")

	ctx := WithCorrelationID(context.Background(), "corr-1")
	Ctx(ctx).Info().Str("route", "/health").Msg("handled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "corr-1", line["correlation_id"])
	require.Equal(t, "/health", line["route"])
	require.Equal(t, "handled", line["message"])
	require.Equal(t, "corr-1", CorrelationID(ctx))
}

func TestCtx_WithoutCorrelationUsesGlobal(t *testing.T) {
	buf := capture(t, "info")

	Ctx(context.Background()).Info().Msg("plain")
	require.Contains(t, buf.String(), `"message":"plain"`)
	require.NotContains(t, buf.String(), "correlation_id")
	require.Equal(t, "", CorrelationID(context.Background()))
}

func TestInit_LevelFilters(t *testing.T) {
	buf := capture(t, "warn")

	l := Logger()
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	require.False(t, strings.Contains(buf.String(), "dropped"))
	require.True(t, strings.Contains(buf.String(), "kept"))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zerolog.InfoLevel, parseLevel(""))
	require.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}
