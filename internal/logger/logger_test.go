package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_LevelParsing(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		// Unknown levels fall back to info.
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, c := range cases {
		log, err := New(c.level)
		if err != nil {
			t.Fatalf("%q: %v", c.level, err)
		}
		if !log.Core().Enabled(c.want) {
			t.Fatalf("%q: level %v must be enabled", c.level, c.want)
		}
		if c.want > zapcore.DebugLevel && log.Core().Enabled(c.want-1) {
			t.Fatalf("%q: level %v must be muted", c.level, c.want-1)
		}
	}
}
