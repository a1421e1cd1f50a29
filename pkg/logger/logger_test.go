package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logr, err := New("debug")
	require.NoError(t, err)
	assert.True(t, logr.Core().Enabled(zapcore.DebugLevel))

	logr, err = New("WARN")
	require.NoError(t, err)
	assert.False(t, logr.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logr.Core().Enabled(zapcore.WarnLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud")
	assert.Error(t, err)
}
