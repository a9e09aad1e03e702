package config

import (
	"os"
	"strconv"
)

// Server captures process-level configuration so main stays lean. Everything
// is env-driven; a .env file is loaded by main in development.
type Server struct {
	Addr string

	// Routing thresholds for the classification router.
	ApprovalThreshold float64
	RiskThreshold     float64

	// Store selection: "memory" (default), "postgres", or "sqlite".
	StoreDriver string
	StoreDSN    string

	// Notification sinks. Empty values disable the sink.
	SlackWebhookURL string
	KafkaBrokers    string
	KafkaTopic      string
	// FallbackPath receives JSONL notifications when no sink is configured or
	// delivery fails.
	FallbackPath string

	// Anthropic scorer; empty key falls back to the heuristic scorer.
	AnthropicAPIKey string
	AnthropicModel  string

	// Cron expression for the operations digest; empty disables it.
	DigestSchedule string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:              envOr("DUTYGUARD_ADDR", ":8080"),
		ApprovalThreshold: envFloat("DUTYGUARD_APPROVAL_THRESHOLD", 0.90),
		RiskThreshold:     envFloat("DUTYGUARD_RISK_THRESHOLD", 0.50),
		StoreDriver:       envOr("DUTYGUARD_STORE_DRIVER", "memory"),
		StoreDSN:          os.Getenv("DUTYGUARD_STORE_DSN"),
		SlackWebhookURL:   os.Getenv("DUTYGUARD_SLACK_WEBHOOK_URL"),
		KafkaBrokers:      os.Getenv("DUTYGUARD_KAFKA_BROKERS"),
		KafkaTopic:        envOr("DUTYGUARD_KAFKA_TOPIC", "dutyguard.events"),
		FallbackPath:      envOr("DUTYGUARD_NOTIFY_FALLBACK_PATH", "data/notifications.jsonl"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOr("DUTYGUARD_ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		DigestSchedule:    os.Getenv("DUTYGUARD_DIGEST_SCHEDULE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
