package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.CaptureInterval != 2.5 {
		t.Errorf("CaptureInterval = %f, want %f", cfg.CaptureInterval, 2.5)
	}
	if cfg.SkipInterval != 0.5 {
		t.Errorf("SkipInterval = %f, want %f", cfg.SkipInterval, 0.5)
	}
	if cfg.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, 4)
	}
	if cfg.PhaseEvery != 6 {
		t.Errorf("PhaseEvery = %d, want %d", cfg.PhaseEvery, 6)
	}
	if cfg.MaxSkip != 10 {
		t.Errorf("MaxSkip = %d, want %d", cfg.MaxSkip, 10)
	}
	if cfg.DedupRatio != 0.85 {
		t.Errorf("DedupRatio = %f, want %f", cfg.DedupRatio, 0.85)
	}
	if len(cfg.NoTextMarkers) != 2 {
		t.Errorf("NoTextMarkers = %v, want 2 markers", cfg.NoTextMarkers)
	}
	if cfg.InferenceTransport != "http" {
		t.Errorf("InferenceTransport = %q, want %q", cfg.InferenceTransport, "http")
	}
	if cfg.MQTTBroker != "" {
		t.Errorf("MQTTBroker = %q, want empty", cfg.MQTTBroker)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("CAPTURE_INTERVAL", "1.5")
	t.Setenv("BATCH_SIZE", "2")
	t.Setenv("NOVELTY_ENABLED", "false")
	t.Setenv("NO_TEXT_MARKERS", "none, n/a ,")
	t.Setenv("INFERENCE_TRANSPORT", "grpc")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.CaptureInterval != 1.5 {
		t.Errorf("CaptureInterval = %f, want %f", cfg.CaptureInterval, 1.5)
	}
	if cfg.BatchSize != 2 {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, 2)
	}
	if cfg.NoveltyEnabled {
		t.Error("NoveltyEnabled should be false")
	}
	if strings.Join(cfg.NoTextMarkers, "|") != "none|n/a" {
		t.Errorf("NoTextMarkers = %v, want [none n/a]", cfg.NoTextMarkers)
	}
	if cfg.InferenceTransport != "grpc" {
		t.Errorf("InferenceTransport = %q, want %q", cfg.InferenceTransport, "grpc")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("BATCH_SIZE", "8")

	path := filepath.Join(t.TempDir(), "cinescribe.yaml")
	data := `
capture_interval: 3
phase_every: 4
prompts:
  final: "Write a short review."
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.CaptureInterval != 3 {
		t.Errorf("CaptureInterval = %f, want %f", cfg.CaptureInterval, 3.0)
	}
	if cfg.PhaseEvery != 4 {
		t.Errorf("PhaseEvery = %d, want %d", cfg.PhaseEvery, 4)
	}
	if cfg.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want env value %d", cfg.BatchSize, 8)
	}
	if cfg.Prompts.Final != "Write a short review." {
		t.Errorf("Prompts.Final = %q", cfg.Prompts.Final)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("batch_size: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed yaml")
	}

	cfg, err := LoadFile("")
	if err != nil || cfg == nil {
		t.Errorf("LoadFile(\"\") = %v, %v; want defaults", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.BatchSize = 0
	cfg.NoveltyMetric = "ssim"
	cfg.InferenceTransport = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"batch_size", "novelty_metric", "inference_transport"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(2.5); got != 2500*time.Millisecond {
		t.Errorf("Seconds(2.5) = %v, want 2.5s", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT", "42")
	if v := getEnvInt("TEST_INT", 0); v != 42 {
		t.Errorf("getEnvInt = %d, want %d", v, 42)
	}
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_FLOAT", "3.14")
	if v := getEnvFloat("TEST_FLOAT", 0.0); v != 3.14 {
		t.Errorf("getEnvFloat = %f, want %f", v, 3.14)
	}

	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}
	if getEnvBool("TEST_BOOL_FALSE", true) {
		t.Error("getEnvBool should return false for 'false'")
	}
	if !getEnvBool("NONEXISTENT", true) {
		t.Error("getEnvBool should return default true")
	}
}
