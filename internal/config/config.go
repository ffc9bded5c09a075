// Package config loads the pipeline configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration holds every tunable consumed by the pipeline core.
type Configuration struct {
	// TargetLang is the ISO 639-1 code subtitles are translated into.
	TargetLang string `yaml:"targetLang"`
	// SourceLang is the spoken language fed to the recognizer ("auto" lets the
	// translator detect it).
	SourceLang string `yaml:"sourceLang"`

	// ASRProvider selects the recognizer backend: "mock" or "google".
	ASRProvider string `yaml:"asrProvider"`
	// TranslateProvider selects the translator backend: "stub" or "google".
	TranslateProvider string `yaml:"translateProvider"`

	// FrameDuration is the length of one captured audio frame.
	FrameDuration time.Duration `yaml:"frameDuration"`
	// RingLatencyBudget bounds how much audio is buffered while the
	// recognizer connection is down before the oldest frames are dropped.
	RingLatencyBudget time.Duration `yaml:"ringLatencyBudget"`

	// Reconnect backoff schedule for the recognizer session.
	ReconnectBase   time.Duration `yaml:"reconnectBase"`
	ReconnectFactor float64       `yaml:"reconnectFactor"`
	ReconnectCap    time.Duration `yaml:"reconnectCap"`
	// MaxReconnectAttempts bounds consecutive failed recognizer connection
	// attempts before the pipeline stops with an error. Zero retries forever.
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts"`

	// IdleFinalizeTimeout force-finalizes an open utterance that received no
	// update for this long.
	IdleFinalizeTimeout time.Duration `yaml:"idleFinalizeTimeout"`

	// MaxInflightTranslations caps concurrent translation requests.
	MaxInflightTranslations int `yaml:"maxInflightTranslations"`
	// TranslateRetries is the number of retries after the first attempt.
	TranslateRetries int `yaml:"translateRetries"`

	// ReorderMaxHold bounds how long the render buffer waits for a missing
	// sequence number before emitting a placeholder.
	ReorderMaxHold time.Duration `yaml:"reorderMaxHold"`
	// Subtitle hold-time clamp.
	MinHoldTime time.Duration `yaml:"minHoldTime"`
	MaxHoldTime time.Duration `yaml:"maxHoldTime"`

	// UtteranceQueueDepth bounds the aggregator to dispatcher channel; when it
	// overflows the oldest queued utterance is dropped and counted.
	UtteranceQueueDepth int `yaml:"utteranceQueueDepth"`

	// FastStop drops buffered audio on shutdown instead of draining it.
	FastStop bool `yaml:"fastStop"`
	// StopDeadline bounds the ordered drain during shutdown.
	StopDeadline time.Duration `yaml:"stopDeadline"`

	// History sink settings.
	HistoryDir           string        `yaml:"historyDir"`
	HistoryFlushInterval time.Duration `yaml:"historyFlushInterval"`
	HistoryRetries       int           `yaml:"historyRetries"`

	Kafka KafkaConfig `yaml:"kafka"`

	// ObservabilityAddr serves /metrics, /healthz and /readyz.
	ObservabilityAddr string `yaml:"observabilityAddr"`
}

// KafkaConfig configures the optional Kafka history sink.
type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Principal string   `yaml:"principal"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		TargetLang:              "en",
		SourceLang:              "auto",
		ASRProvider:             "mock",
		TranslateProvider:       "stub",
		FrameDuration:           100 * time.Millisecond,
		RingLatencyBudget:       5 * time.Second,
		ReconnectBase:           250 * time.Millisecond,
		ReconnectFactor:         2,
		ReconnectCap:            8 * time.Second,
		MaxReconnectAttempts:    10,
		IdleFinalizeTimeout:     2 * time.Second,
		MaxInflightTranslations: 4,
		TranslateRetries:        2,
		ReorderMaxHold:          3 * time.Second,
		MinHoldTime:             1200 * time.Millisecond,
		MaxHoldTime:             8 * time.Second,
		UtteranceQueueDepth:     64,
		FastStop:                false,
		StopDeadline:            10 * time.Second,
		HistoryDir:              "history",
		HistoryFlushInterval:    2 * time.Second,
		HistoryRetries:          3,
		Kafka: KafkaConfig{
			Topic:     "subtitle.history",
			Principal: "svc-live-subtitle",
		},
		ObservabilityAddr: ":9090",
	}
}

// Load reads the configuration file named by SUBTITLE_CONFIG (if set), then
// applies environment variable overrides on top of the defaults.
func Load() (*Configuration, error) {
	cfg := Default()

	if path := os.Getenv("SUBTITLE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) applyEnv() {
	c.TargetLang = envOrDefault("SUBTITLE_TARGET_LANG", c.TargetLang)
	c.SourceLang = envOrDefault("SUBTITLE_SOURCE_LANG", c.SourceLang)
	c.ASRProvider = envOrDefault("SUBTITLE_ASR_PROVIDER", c.ASRProvider)
	c.TranslateProvider = envOrDefault("SUBTITLE_TRANSLATE_PROVIDER", c.TranslateProvider)
	c.HistoryDir = envOrDefault("SUBTITLE_HISTORY_DIR", c.HistoryDir)
	c.ObservabilityAddr = envOrDefault("SUBTITLE_OBS_ADDR", c.ObservabilityAddr)
	c.MaxInflightTranslations = envIntOrDefault("SUBTITLE_MAX_INFLIGHT", c.MaxInflightTranslations)
	c.MaxReconnectAttempts = envIntOrDefault("SUBTITLE_MAX_RECONNECTS", c.MaxReconnectAttempts)
	c.FastStop = envBoolOrDefault("SUBTITLE_FAST_STOP", c.FastStop)
	c.Kafka.Enabled = envBoolOrDefault("SUBTITLE_KAFKA_ENABLED", c.Kafka.Enabled)
	if v := os.Getenv("SUBTITLE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCommaList(v)
	}
	c.Kafka.Topic = envOrDefault("SUBTITLE_KAFKA_TOPIC", c.Kafka.Topic)
}

// Validate rejects values the pipeline cannot run with.
func (c *Configuration) Validate() error {
	if c.TargetLang == "" {
		return fmt.Errorf("targetLang must not be empty")
	}
	if c.MaxInflightTranslations < 1 {
		return fmt.Errorf("maxInflightTranslations must be >= 1, got %d", c.MaxInflightTranslations)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frameDuration must be positive, got %v", c.FrameDuration)
	}
	if c.RingLatencyBudget < c.FrameDuration {
		return fmt.Errorf("ringLatencyBudget %v is smaller than one frame %v", c.RingLatencyBudget, c.FrameDuration)
	}
	if c.MinHoldTime > c.MaxHoldTime {
		return fmt.Errorf("minHoldTime %v exceeds maxHoldTime %v", c.MinHoldTime, c.MaxHoldTime)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("maxReconnectAttempts must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	if c.UtteranceQueueDepth < 1 {
		return fmt.Errorf("utteranceQueueDepth must be >= 1, got %d", c.UtteranceQueueDepth)
	}
	return nil
}

// RingCapacity returns the frame ring size implied by the latency budget.
func (c *Configuration) RingCapacity() int {
	n := int(c.RingLatencyBudget / c.FrameDuration)
	if n < 1 {
		n = 1
	}
	return n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
