package logging

import (
	"bytes"
	"testing"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.Logger{Enabled: true, Level: "warn", Format: "logfmt"})

	logger.Info("hidden")
	logger.Warn("shown", "pairs", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "pairs=3")
	assert.Contains(t, out, "Playgraph")
}

func TestNewLoggerDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.Logger{Enabled: false, Level: "debug"})
	logger.Error("nothing")
	assert.Empty(t, buf.String())
}
