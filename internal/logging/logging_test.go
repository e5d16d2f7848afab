package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		opts Options
		want zapcore.Level
	}{
		{Options{}, zapcore.InfoLevel},
		{Options{Level: "warn"}, zapcore.WarnLevel},
		{Options{Level: "error", Verbose: true}, zapcore.DebugLevel},
		{Options{Level: "debug", Encoding: "console"}, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		logger, err := New(tc.opts)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tc.want), "%+v", tc.opts)
		if tc.want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(tc.want-1), "%+v", tc.opts)
		}
	}
}

func TestNewRejectsUnknownValues(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Options{Encoding: "xml"})
	assert.Error(t, err)
}
