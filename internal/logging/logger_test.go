package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerForLevelSelectsNoOpOnSilent(t *testing.T) {
	logger := NewLoggerForLevel("silent")
	_, ok := logger.(*NoOpLogger)
	assert.True(t, ok)

	logger = NewLoggerForLevel("NONE")
	_, ok = logger.(*NoOpLogger)
	assert.True(t, ok)
}

func TestNewLoggerForLevelBuildsStructuredLoggerOtherwise(t *testing.T) {
	logger := NewLoggerForLevel("debug")
	structured, ok := logger.(*StructuredLogger)
	assert.True(t, ok)
	assert.Equal(t, DEBUG, structured.level)
}

func TestParseLogLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, INFO, ParseLogLevel("bogus"))
	assert.Equal(t, WARN, ParseLogLevel("warning"))
}
