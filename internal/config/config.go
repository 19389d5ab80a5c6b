// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the full service configuration.
type Config struct {
	Service ServiceConfig
	Storage StorageConfig
	STT     STTConfig
	Kafka   KafkaConfig
}

// ServiceConfig holds HTTP server settings.
type ServiceConfig struct {
	Port           string
	MetricsPort    string
	MaxUploadBytes int64
}

// StorageConfig holds filesystem layout settings.
type StorageConfig struct {
	// WorkingDir holds raw uploaded chunks, keyed by session ID.
	WorkingDir string
	// OutputDir holds finalized artifacts and screenshots, keyed by
	// normalized session title.
	OutputDir string
}

// STTConfig holds transcriber settings.
type STTConfig struct {
	// Provider selects the transcriber implementation: "whisperx" or "mock".
	Provider string
	Binary   string
	ModelDir string
	// Workers bounds how many transcription jobs run in parallel.
	// Defaults to 1 for single-accelerator deployments.
	Workers int
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicSessions    string
	TopicTranscripts string
	Principal        string
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Port:           envOrDefault("PORT", "8017"),
			MetricsPort:    envOrDefault("METRICS_PORT", "9090"),
			MaxUploadBytes: int64(envOrDefaultInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		},
		Storage: StorageConfig{
			WorkingDir: envOrDefault("WORKING_DIR", "./data"),
			OutputDir:  envOrDefault("OUTPUT_DIR", "./output"),
		},
		STT: STTConfig{
			Provider: envOrDefault("STT_PROVIDER", "whisperx"),
			Binary:   envOrDefault("WHISPERX_BIN", "whisperx"),
			ModelDir: os.Getenv("MODEL_DIR"),
			Workers:  envOrDefaultInt("STT_WORKERS", 1),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicSessions:    envOrDefault("KAFKA_TOPIC_SESSIONS", "recording.session.events"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "recording.transcript.final"),
			Principal:        envOrDefault("SERVICE_PRINCIPAL", "svc-recording-orchestrator"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
