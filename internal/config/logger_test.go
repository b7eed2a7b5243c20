package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_Level(t *testing.T) {
	NewLogger(LoggerConfig{Level: "debug", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	NewLogger(LoggerConfig{Level: "warn", Format: "console"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	// Unknown levels fall back to info instead of silencing the process.
	NewLogger(LoggerConfig{Level: "verbose", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
