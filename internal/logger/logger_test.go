package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInit(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			if err := Init("debug", format); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			l := GetZapLogger()
			if !l.Core().Enabled(zapcore.DebugLevel) {
				t.Error("debug level not enabled")
			}
		})
	}

	if err := Init("loud", "json"); err == nil {
		t.Error("Init() accepted an invalid level")
	}
}

func TestGetZapLogger_BeforeInit(t *testing.T) {
	saved := logger
	logger = nil
	defer func() { logger = saved }()

	if GetZapLogger() == nil {
		t.Error("GetZapLogger() returned nil before Init")
	}
	if err := Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

func TestBuild_Output(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := build("info", "json", false, zapcore.AddSync(&buf))
		if err != nil {
			t.Fatalf("build() error = %v", err)
		}
		l.Info("transfer finished", zap.String("url", "http://h/x"))
		l.Debug("hidden")

		var line map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
			t.Fatalf("output is not one json line: %q", buf.String())
		}
		if line["msg"] != "transfer finished" || line["url"] != "http://h/x" || line["level"] != "info" {
			t.Errorf("unexpected fields: %v", line)
		}
		if _, ok := line["timestamp"]; !ok {
			t.Error("timestamp missing")
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := build("debug", "text", false, zapcore.AddSync(&buf))
		if err != nil {
			t.Fatalf("build() error = %v", err)
		}
		l.Warn("remote copy changed")

		out := buf.String()
		if !strings.Contains(out, "WARN") || !strings.Contains(out, "remote copy changed") {
			t.Errorf("unexpected text output: %q", out)
		}
		if strings.Contains(out, "\x1b[") {
			t.Errorf("color codes without a terminal: %q", out)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := build("info", "xml", false, zapcore.AddSync(&bytes.Buffer{})); err == nil {
			t.Error("build() accepted an unknown format")
		}
	})
}
