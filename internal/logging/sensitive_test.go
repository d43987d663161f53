package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"seer/internal/config"
)

func TestMaskSensitiveValue(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
		expected  string
	}{
		{"password field", "password", "mysecretpassword", MaskedValue},
		{"api_key field", "api_key", "sk_live_12345", MaskedValue},
		{"fetcher key", "fetcher_api_key", "fk-123", MaskedValue},
		{"dsn", "dsn", "host=db user=seer password=x", MaskedValue},
		{"contains sensitive word", "openai_api_key", "sk-abc", MaskedValue},
		{"normal field", "username", "admin", "admin"},
		{"empty value", "password", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveValue(tt.fieldName, tt.value); got != tt.expected {
				t.Errorf("MaskSensitiveValue(%q, %q) = %q, want %q",
					tt.fieldName, tt.value, got, tt.expected)
			}
		})
	}
}

func TestIsSensitiveField(t *testing.T) {
	for _, field := range []string{"password", "API_KEY", "X-Api-Key", "webhook_url", "redis_pass"} {
		if !IsSensitiveField(field) {
			t.Errorf("IsSensitiveField(%q) = false, want true", field)
		}
	}
	for _, field := range []string{"url", "job_id", "severity"} {
		if IsSensitiveField(field) {
			t.Errorf("IsSensitiveField(%q) = true, want false", field)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", MaskedValue},
		{"sk-1234567890abcdef", "sk-1****cdef"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestHandlerMasksAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: maskAttr})
	logger := slog.New(handler)

	logger.Info("connecting", "api_key", "sk-secret-value", "url", "https://example.com")

	out := buf.String()
	if strings.Contains(out, "sk-secret-value") {
		t.Errorf("log output leaked api key: %s", out)
	}
	if !strings.Contains(out, MaskedValue) {
		t.Errorf("log output missing mask: %s", out)
	}
	if !strings.Contains(out, "https://example.com") {
		t.Errorf("non-sensitive attribute was dropped: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupReturnsLogger(t *testing.T) {
	logger := Setup(config.LoggingConfig{Level: "debug", Format: "text"})
	if logger == nil {
		t.Fatal("Setup returned nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
}
