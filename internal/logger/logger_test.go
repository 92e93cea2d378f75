package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/h2mux/internal/config"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&config.LoggingConfig{LogLevel: config.LogLevelInfo, Format: config.LogFormatJSON}, &buf)
	require.NoError(t, err)

	log.Info().Str("k", "v").Msg("hello")
	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "hello", event["message"])
	assert.Equal(t, "v", event["k"])
}

func TestNewWithOutput_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&config.LoggingConfig{LogLevel: config.LogLevelError, Format: config.LogFormatJSON}, &buf)
	require.NoError(t, err)

	log.Info().Msg("suppressed")
	assert.Zero(t, buf.Len())
	log.Error().Msg("emitted")
	assert.NotZero(t, buf.Len())
}

func TestNewWithOutput_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&config.LoggingConfig{LogLevel: config.LogLevelDebug, Format: config.LogFormatConsole}, &buf)
	require.NoError(t, err)
	log.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want zerolog.Level
	}{
		{config.LogLevelDebug, zerolog.DebugLevel},
		{config.LogLevelInfo, zerolog.InfoLevel},
		{config.LogLevelWarning, zerolog.WarnLevel},
		{config.LogLevelError, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := parseLevel(config.LogLevel("TRACE"))
	require.Error(t, err)
}
