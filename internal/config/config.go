package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the call bridge service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel     string
	LogFormat    string
	LogRedactPII bool

	OpenAIAPIKey        string
	OpenAIRealtimeURL   string
	OpenAIRealtimeModel string
	OpenAIVoice         string
	OpenAIDialTimeout   time.Duration

	// RealtimeAudioFormat is the input/output format announced to the AI side.
	RealtimeAudioFormat string
	MediaFormatStrict   bool

	AgentOwnerName           string
	AgentRole                string
	AgentAboutMe             string
	AgentEmail               string
	AgentSpecialInstructions string

	TwilioAuthToken string
	PublicHost      string

	S3Bucket          string
	S3Prefix          string
	AWSRegion         string
	DatabaseURL       string
	RecordSaveTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "callbridge"),
		AllowAnyOrigin:           true,
		LogLevel:                 envOrDefault("LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("LOG_FORMAT", "json"),
		LogRedactPII:             true,
		OpenAIAPIKey:             stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIRealtimeURL:        envOrDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		OpenAIRealtimeModel:      envOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		OpenAIVoice:              envOrDefault("OPENAI_VOICE", "verse"),
		RealtimeAudioFormat:      envOrDefault("REALTIME_AUDIO_FORMAT", "g711_ulaw"),
		MediaFormatStrict:        true,
		AgentOwnerName:           envOrDefault("AGENT_OWNER_NAME", "the owner"),
		AgentRole:                stringsTrimSpace("AGENT_ROLE"),
		AgentAboutMe:             stringsTrimSpace("AGENT_ABOUT_ME"),
		AgentEmail:               stringsTrimSpace("AGENT_EMAIL"),
		AgentSpecialInstructions: stringsTrimSpace("AGENT_SPECIAL_INSTRUCTIONS"),
		TwilioAuthToken:          stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		PublicHost:               stringsTrimSpace("PUBLIC_HOST"),
		S3Bucket:                 stringsTrimSpace("S3_BUCKET"),
		S3Prefix:                 envOrDefault("S3_TRANSCRIPT_PREFIX", "transcripts/"),
		AWSRegion:                envOrDefault("AWS_REGION", "us-west-2"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		OpenAIDialTimeout:        10 * time.Second,
		RecordSaveTimeout:        10 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAIDialTimeout, err = durationFromEnv("OPENAI_DIAL_TIMEOUT", cfg.OpenAIDialTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordSaveTimeout, err = durationFromEnv("RECORD_SAVE_TIMEOUT", cfg.RecordSaveTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogRedactPII, err = boolFromEnv("LOG_REDACT_PII", cfg.LogRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.MediaFormatStrict, err = boolFromEnv("MEDIA_FORMAT_STRICT", cfg.MediaFormatStrict)
	if err != nil {
		return Config{}, err
	}

	if cfg.OpenAIDialTimeout <= 0 {
		return Config{}, fmt.Errorf("OPENAI_DIAL_TIMEOUT must be positive")
	}
	if cfg.RecordSaveTimeout <= 0 {
		return Config{}, fmt.Errorf("RECORD_SAVE_TIMEOUT must be positive")
	}
	if strings.TrimSpace(cfg.AgentOwnerName) == "" {
		return Config{}, fmt.Errorf("AGENT_OWNER_NAME must not be blank")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}
	if u, err := url.Parse(cfg.OpenAIRealtimeURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return Config{}, fmt.Errorf("OPENAI_REALTIME_URL must be a ws:// or wss:// URL")
	}

	return cfg, nil
}

// RealtimeDialURL returns the realtime endpoint with the model query parameter applied.
func (c Config) RealtimeDialURL() string {
	u, err := url.Parse(c.OpenAIRealtimeURL)
	if err != nil {
		return c.OpenAIRealtimeURL
	}
	if strings.TrimSpace(c.OpenAIRealtimeModel) != "" {
		q := u.Query()
		q.Set("model", c.OpenAIRealtimeModel)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
