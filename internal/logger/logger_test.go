package logger

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   zapcore.Level
		wantOK bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{" WARN ", zapcore.WarnLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"verbose", zapcore.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseLevel(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	if f := Int64("records", 42); f.Key != "records" || f.Integer != 42 {
		t.Errorf("Int64() = %+v", f)
	}
	if f := Bool("ok", true); f.Type != zapcore.BoolType || f.Integer != 1 {
		t.Errorf("Bool() = %+v", f)
	}
	if f := Time("at", time.Unix(10, 0)); f.Type != zapcore.TimeType {
		t.Errorf("Time() type = %v, want %v", f.Type, zapcore.TimeType)
	}
	if f := Error(errors.New("boom")); f.Key != "error" {
		t.Errorf("Error() key = %q, want error", f.Key)
	}
}

func TestNopLoggerWith(t *testing.T) {
	l := NewNop().With(String("job", "sweep"))
	l.Info("ignored", Int("n", 1))
	if err := l.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}
