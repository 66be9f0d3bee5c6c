package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		want          zapcore.Level
		wantErr       bool
	}{
		{level: "", format: "", want: zapcore.InfoLevel},
		{level: "DEBUG", format: "console", want: zapcore.DebugLevel},
		{level: "warn", format: "json", want: zapcore.WarnLevel},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		l, err := New(tt.level, tt.format)
		if tt.wantErr {
			assert.Error(t, err, "level=%q format=%q", tt.level, tt.format)
			continue
		}
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(tt.want))
		if tt.want > zapcore.DebugLevel {
			assert.False(t, l.Core().Enabled(tt.want-1))
		}
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
