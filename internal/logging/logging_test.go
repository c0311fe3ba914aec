package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/apmanager001/tripmaps-sub000/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(config.Config{LogLevel: "debug", LogFormat: "json"}, &buf)
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("unexpected level: %v", logger.GetLevel())
	}

	logger.WithField("key", "photos/a.jpg").Warn("object delete failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["key"] != "photos/a.jpg" || entry["level"] != "warning" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	logger := New(config.Config{LogLevel: "loud"})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level")
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
