package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	t.Run("unknown format", func(t *testing.T) {
		if err := Init(Options{Format: "xml"}); err == nil {
			t.Fatal("expected error for unknown format")
		}
	})

	t.Run("file core writes json with service", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pricing.log")
		if err := Init(Options{Level: "debug", Format: "json", File: path, Service: "pricing-engine"}); err != nil {
			t.Fatalf("Init: %v", err)
		}

		Named("optimizer").Debug("suggestion logged", zap.Int64("flight_id", 1001))
		Sync()

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		line := strings.TrimSpace(string(raw))

		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not json: %q", line)
		}
		if entry["service"] != "pricing-engine" {
			t.Errorf("service = %v", entry["service"])
		}
		if entry["logger"] != "optimizer" {
			t.Errorf("logger = %v", entry["logger"])
		}
		if entry["flight_id"] != float64(1001) {
			t.Errorf("flight_id = %v", entry["flight_id"])
		}
	})

	t.Run("level filters", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pricing.log")
		if err := Init(Options{Level: "warn", File: path}); err != nil {
			t.Fatalf("Init: %v", err)
		}

		Info("dropped")
		Warn("kept")
		Sync()

		raw, _ := os.ReadFile(path)
		if strings.Contains(string(raw), "dropped") || !strings.Contains(string(raw), "kept") {
			t.Errorf("unexpected log contents: %s", raw)
		}
	})
}
