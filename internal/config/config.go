// Package config handles pipeline configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the capture and narrative pipeline.
// Values come from the environment, optionally overlaid by a YAML file and CLI flags.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`

	// Capture cadence
	CaptureInterval float64 `yaml:"capture_interval"` // seconds between ticks
	SkipInterval    float64 `yaml:"skip_interval"`    // seconds after a skipped sample
	MinSleep        float64 `yaml:"min_sleep"`        // seconds, busy-loop floor
	CaptionFraction float64 `yaml:"caption_fraction"` // bottom band cropped for caption reading

	// Novelty gate
	NoveltyEnabled   bool    `yaml:"novelty_enabled"`
	NoveltyMetric    string  `yaml:"novelty_metric"` // "mad" or "phash"
	NoveltyThreshold float64 `yaml:"novelty_threshold"`
	NoveltyRegion    float64 `yaml:"novelty_region"` // bottom fraction compared
	MaxSkip          int     `yaml:"max_skip"`

	// Caption dedup
	DedupHistory   int      `yaml:"dedup_history"`
	DedupRatio     float64  `yaml:"dedup_ratio"`
	DedupMinLength int      `yaml:"dedup_min_length"`
	NoTextMarkers  []string `yaml:"no_text_markers"`

	// Batching and summarization
	BatchSize      int `yaml:"batch_size"`
	PhaseEvery     int `yaml:"phase_every"`
	PhaseLookback  int `yaml:"phase_lookback"`
	EntryContext   int `yaml:"entry_context"`
	SummaryContext int `yaml:"summary_context"` // 0 = all prior summaries

	// Inference
	InferenceTransport string  `yaml:"inference_transport"` // "http" or "grpc"
	InferenceURL       string  `yaml:"inference_url"`
	InferenceAddr      string  `yaml:"inference_addr"`
	InferenceModel     string  `yaml:"inference_model"`
	InferenceAPIKey    string  `yaml:"-"`
	InferenceTimeout   float64 `yaml:"inference_timeout"` // seconds
	Temperature        float64 `yaml:"temperature"`
	OCREnabled         bool    `yaml:"ocr_enabled"`
	OCRURL             string  `yaml:"ocr_url"`
	OCRModel           string  `yaml:"ocr_model"`
	OCRTargetWidth     int     `yaml:"ocr_target_width"`
	VisionMaxDimension int     `yaml:"vision_max_dimension"`
	JPEGQuality        int     `yaml:"jpeg_quality"`

	// Token budgets
	OCRMaxTokens   int `yaml:"ocr_max_tokens"`
	EntryMaxTokens int `yaml:"entry_max_tokens"`
	PhaseMaxTokens int `yaml:"phase_max_tokens"`
	FinalMaxTokens int `yaml:"final_max_tokens"`

	// Playback
	PlaybackEnabled bool    `yaml:"playback_enabled"`
	SettleDelay     float64 `yaml:"settle_delay"` // seconds after pause
	ResumeDelay     float64 `yaml:"resume_delay"` // seconds after resume

	// Shutdown
	DrainTimeout float64 `yaml:"drain_timeout"` // seconds to wait for in-flight dispatches

	// Event publishing
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	Prompts Prompts `yaml:"prompts"`
}

// Prompts overrides the built-in instructions. Empty fields keep the defaults.
type Prompts struct {
	Caption     string `yaml:"caption"`
	SingleFrame string `yaml:"single_frame"`
	Batch       string `yaml:"batch"`
	Phase       string `yaml:"phase"`
	Final       string `yaml:"final"`
}

func Load() *Config {
	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
		OutputDir: getEnv("OUTPUT_DIR", "."),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		CaptureInterval: getEnvFloat("CAPTURE_INTERVAL", 2.5),
		SkipInterval:    getEnvFloat("SKIP_INTERVAL", 0.5),
		MinSleep:        getEnvFloat("MIN_SLEEP", 0.1),
		CaptionFraction: getEnvFloat("CAPTION_FRACTION", 0.2),

		NoveltyEnabled:   getEnvBool("NOVELTY_ENABLED", true),
		NoveltyMetric:    getEnv("NOVELTY_METRIC", "mad"),
		NoveltyThreshold: getEnvFloat("NOVELTY_THRESHOLD", 2.5),
		NoveltyRegion:    getEnvFloat("NOVELTY_REGION", 1.0/3.0),
		MaxSkip:          getEnvInt("MAX_SKIP", 10),

		DedupHistory:   getEnvInt("DEDUP_HISTORY", 10),
		DedupRatio:     getEnvFloat("DEDUP_RATIO", 0.85),
		DedupMinLength: getEnvInt("DEDUP_MIN_LENGTH", 2),
		NoTextMarkers:  getEnvList("NO_TEXT_MARKERS", []string{"无", "none"}),

		BatchSize:      getEnvInt("BATCH_SIZE", 4),
		PhaseEvery:     getEnvInt("PHASE_EVERY", 6),
		PhaseLookback:  getEnvInt("PHASE_LOOKBACK", 6),
		EntryContext:   getEnvInt("ENTRY_CONTEXT", 2),
		SummaryContext: getEnvInt("SUMMARY_CONTEXT", 0),

		InferenceTransport: getEnv("INFERENCE_TRANSPORT", "http"),
		InferenceURL:       getEnv("INFERENCE_URL", "http://127.0.0.1:1234/v1/chat/completions"),
		InferenceAddr:      getEnv("INFERENCE_ADDR", "localhost:50051"),
		InferenceModel:     getEnv("INFERENCE_MODEL", "qwen/qwen3-vl-30b"),
		InferenceAPIKey:    getEnv("INFERENCE_API_KEY", ""),
		InferenceTimeout:   getEnvFloat("INFERENCE_TIMEOUT", 90),
		Temperature:        getEnvFloat("TEMPERATURE", 0.7),
		OCREnabled:         getEnvBool("OCR_ENABLED", true),
		OCRURL:             getEnv("OCR_URL", "http://127.0.0.1:1234/v1/chat/completions"),
		OCRModel:           getEnv("OCR_MODEL", "qwen/qwen3-vl-4b"),
		OCRTargetWidth:     getEnvInt("OCR_TARGET_WIDTH", 1024),
		VisionMaxDimension: getEnvInt("VISION_MAX_DIMENSION", 1560),
		JPEGQuality:        getEnvInt("JPEG_QUALITY", 85),

		OCRMaxTokens:   getEnvInt("OCR_MAX_TOKENS", 150),
		EntryMaxTokens: getEnvInt("ENTRY_MAX_TOKENS", 350),
		PhaseMaxTokens: getEnvInt("PHASE_MAX_TOKENS", 600),
		FinalMaxTokens: getEnvInt("FINAL_MAX_TOKENS", 2500),

		PlaybackEnabled: getEnvBool("PLAYBACK_ENABLED", true),
		SettleDelay:     getEnvFloat("SETTLE_DELAY", 1.0),
		ResumeDelay:     getEnvFloat("RESUME_DELAY", 0.5),

		DrainTimeout: getEnvFloat("DRAIN_TIMEOUT", 95),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "cinescribe/events"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "cinescribe"),
	}
}

// LoadFile loads the environment config and overlays the YAML file at path.
// Keys absent from the file keep their environment or default values.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.CaptureInterval > 0, "capture_interval must be positive")
	check(c.SkipInterval > 0, "skip_interval must be positive")
	check(c.MinSleep >= 0, "min_sleep must not be negative")
	check(c.CaptionFraction > 0 && c.CaptionFraction <= 1, "caption_fraction must be in (0,1]")
	check(c.NoveltyRegion > 0 && c.NoveltyRegion <= 1, "novelty_region must be in (0,1]")
	check(c.NoveltyMetric == "mad" || c.NoveltyMetric == "phash", "novelty_metric must be mad or phash")
	check(c.NoveltyThreshold >= 0 && c.NoveltyThreshold <= 255, "novelty_threshold must be in [0,255]")
	check(c.MaxSkip >= 1, "max_skip must be at least 1")
	check(c.DedupHistory >= 1, "dedup_history must be at least 1")
	check(c.DedupRatio > 0 && c.DedupRatio <= 1, "dedup_ratio must be in (0,1]")
	check(c.BatchSize >= 1, "batch_size must be at least 1")
	check(c.PhaseEvery >= 1, "phase_every must be at least 1")
	check(c.PhaseLookback >= 1, "phase_lookback must be at least 1")
	check(c.EntryContext >= 0, "entry_context must not be negative")
	check(c.SummaryContext >= 0, "summary_context must not be negative")
	check(c.InferenceTransport == "http" || c.InferenceTransport == "grpc", "inference_transport must be http or grpc")
	check(c.InferenceTimeout > 0, "inference_timeout must be positive")
	check(c.JPEGQuality >= 1 && c.JPEGQuality <= 100, "jpeg_quality must be in [1,100]")

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Seconds converts a float seconds setting to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
