package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	PubsubTopic      string
	Subscription     string
	GoogleProjectID  string
	TargetNamespace  string
	MetricsPort      int
	GracePeriod      time.Duration
	IdleDeallocDelay time.Duration
	LogLevel         string
	CredentialsFile  string
}

func Load() *Config {
	cfg := &Config{
		Subscription:     strings.TrimSpace(getEnv("MATCH_EVENT_SUBSCRIPTION", os.Getenv("ORCHESTRATOR_PUBSUB_SUBSCRIPTION"))),
		PubsubTopic:      strings.TrimSpace(getEnv("ALLOCATION_EVENT_TOPIC", os.Getenv("ORCHESTRATOR_PUBSUB_TOPIC"))),
		TargetNamespace:  strings.TrimSpace(getEnv("TARGET_NAMESPACE", "default")),
		MetricsPort:      getEnvInt("ORCHESTRATOR_METRICS_PORT", 8080),
		GracePeriod:      getEnvDuration("ORCHESTRATOR_GRACE_PERIOD", 5*time.Minute),
		IdleDeallocDelay: getEnvDuration("ORCHESTRATOR_DEALLOC_DELAY", 5*time.Minute),
		LogLevel:         strings.TrimSpace(getEnv("ORCHESTRATOR_LOG_LEVEL", "info")),
		CredentialsFile:  strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), os.Getenv("ORCHESTRATOR_GSA_CREDENTIALS"))),
	}

	cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("ORCHESTRATOR_PUBSUB_PROJECT_ID", "")))
	if cfg.GoogleProjectID == "" {
		log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or ORCHESTRATOR_PUBSUB_PROJECT_ID")
	}
	if cfg.Subscription == "" {
		log.Warn().Msg("Pub/Sub subscription not set; set MATCH_EVENT_SUBSCRIPTION or ORCHESTRATOR_PUBSUB_SUBSCRIPTION")
	}
	if cfg.PubsubTopic == "" {
		log.Warn().Msg("Pub/Sub topic not set; set ALLOCATION_EVENT_TOPIC or ORCHESTRATOR_PUBSUB_TOPIC")
	}
	return cfg
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"projectID":           c.GoogleProjectID,
		"matchSubscription":   c.Subscription,
		"eventTopic":          c.PubsubTopic,
		"targetNamespace":     c.TargetNamespace,
		"metricsPort":         c.MetricsPort,
		"gracePeriod":         c.GracePeriod.String(),
		"idleDeallocDelay":    c.IdleDeallocDelay.String(),
		"logLevel":            c.LogLevel,
		"credentialsProvided": c.CredentialsFile != "",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		fmt.Printf("invalid int for %s: %s\n", key, v)
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
		fmt.Printf("invalid duration for %s: %s\n", key, v)
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	var x struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &x); err != nil {
		return "", err
	}
	return x.ProjectID, nil
}

func getGoogleProjectID(credsFile string, explicit string) string {
	// 1) Prefer GOOGLE_APPLICATION_CREDENTIALS if set
	if p := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); p != "" {
		log.Info().Str("credsFile", p).Msg("GOOGLE_APPLICATION_CREDENTIALS is set; extracting project_id from credentials file")
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			return strings.TrimSpace(pid)
		}
		log.Warn().Str("credsFile", p).Msg("project_id not found in credentials file or unreadable")
	}

	// 2) Explicit override from orchestrator env
	if explicit != "" {
		log.Info().Str("projectID", explicit).Msg("using ORCHESTRATOR_PUBSUB_PROJECT_ID for Google project")
		return explicit
	}

	// 3) External k8s override
	if v := strings.TrimSpace(os.Getenv("GOOGLE_PROJECT_ID")); v != "" {
		log.Info().Str("projectID", v).Msg("using GOOGLE_PROJECT_ID from environment")
		return v
	}

	// 4) Common Google envs
	if v := firstNonEmpty(os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT")); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		log.Info().Str("projectID", v).Msg("using Google project from common environment variables")
		return v
	}

	// 5) Fallback to provided credentials file path (ORCHESTRATOR_GSA_CREDENTIALS)
	if p := strings.TrimSpace(credsFile); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from provided credentials file")
			return strings.TrimSpace(pid)
		}
	}
	return ""
}
