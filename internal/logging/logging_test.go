package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		enabled zapcore.Level
	}{
		{"console info", "info", "console", false, zapcore.InfoLevel},
		{"json debug", "debug", "json", false, zapcore.DebugLevel},
		{"upper case", "WARN", "JSON", false, zapcore.WarnLevel},
		{"empty format", "error", "", false, zapcore.ErrorLevel},
		{"bad level", "verbose", "console", true, 0},
		{"bad format", "info", "xml", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.enabled-1))
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l, err := New("info", "console")
	require.NoError(t, err)
	assert.Same(t, l, OrNop(l))
}
