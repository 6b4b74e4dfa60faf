package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty should default to false (JSON output)")
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger.Info().
		Str("location", "eastus").
		Str("error_class", "transient").
		Int("attempt", 2).
		Msg("Retryable upstream error, backing off")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v (%q)", err, buf.String())
	}

	if entry["message"] != "Retryable upstream error, backing off" {
		t.Errorf("message = %v, want the logged message", entry["message"])
	}
	if entry["location"] != "eastus" {
		t.Errorf("location = %v, want eastus", entry["location"])
	}
	if entry["error_class"] != "transient" {
		t.Errorf("error_class = %v, want transient", entry["error_class"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", entry["attempt"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Entries should carry a timestamp")
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: buf,
	})

	logger.Info().Msg("Token refreshed")

	output := buf.String()
	if !strings.Contains(output, "Token refreshed") {
		t.Errorf("Expected console output to contain the message, got %q", output)
	}
	if json.Valid(buf.Bytes()) {
		t.Error("Pretty output should be console format, not JSON")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

// Each subsystem tags its lines with a component field so token, cache
// and HTTP events can be filtered apart in aggregated logs.
func TestNewLogger_ComponentField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	for _, component := range []string{"token", "upstream", "http"} {
		buf.Reset()

		logger := NewLogger(component)
		logger.Info().Msg("Worker started")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Output is not valid JSON: %v", err)
		}
		if entry["component"] != component {
			t.Errorf("component = %v, want %s", entry["component"], component)
		}
	}
}

// At the default info level, debug-only noise (cache hits, retry
// decisions) stays out of the stream while operational events pass.
func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("http")

	logger.Debug().Str("location", "eastus").Msg("Request rejected")
	logger.Info().Msg("Token refreshed")
	logger.Warn().Msg("Shared cache write failed")
	logger.Error().Msg("Worker died, restarting")

	output := buf.String()

	if strings.Contains(output, "Request rejected") {
		t.Error("Debug entries should be filtered at info level")
	}
	for _, msg := range []string{"Token refreshed", "Shared cache write failed", "Worker died, restarting"} {
		if !strings.Contains(output, msg) {
			t.Errorf("Expected %q at info level, got %q", msg, output)
		}
	}
}
