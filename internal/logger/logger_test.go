package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		enabled    zapcore.Level
		disabled   zapcore.Level
		wantErr    bool
	}{
		{env: "production", level: "", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{env: "development", level: "", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{env: "production", level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{env: "production", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s/%s: expected error", tt.env, tt.level)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.env, tt.level, err)
		}
		if !log.Core().Enabled(tt.enabled) {
			t.Fatalf("%s/%s: expected %s enabled", tt.env, tt.level, tt.enabled)
		}
		if log.Core().Enabled(tt.disabled) {
			t.Fatalf("%s/%s: expected %s disabled", tt.env, tt.level, tt.disabled)
		}
	}
}
