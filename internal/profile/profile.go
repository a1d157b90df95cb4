package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory
	Data string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// DSN points to where reserve stores its own data
	DSN string
	// Version is the current version of the server
	Version string

	// Timezone is the fixed reference zone for all natural-language
	// date resolution. Relative words like "tomorrow" are resolved
	// against the current time in this zone, never against a constant.
	Timezone string

	// BotToken is the chat platform credential (RESERVE_BOT_TOKEN).
	BotToken string
	// WebhookSecret, when set, must match the platform's secret token
	// header on every webhook call (RESERVE_WEBHOOK_SECRET).
	WebhookSecret string
	// AdminChatID receives admin notifications (RESERVE_ADMIN_CHAT_ID).
	AdminChatID int64

	// OpenAI configuration for the model extraction tier. An empty API
	// key forces fallback-only mode; it is not an error.
	OpenAIAPIKey  string // RESERVE_OPENAI_API_KEY
	OpenAIBaseURL string // RESERVE_OPENAI_BASE_URL
	OpenAIModel   string // RESERVE_OPENAI_MODEL

	// ExtractTimeout bounds a single model-tier call.
	ExtractTimeout time.Duration
	// HandoffTimeout bounds how long a webhook listener waits for the
	// dispatch loop to finish one event.
	HandoffTimeout time.Duration
	// QueueSize is the dispatch loop's inbound event buffer.
	QueueSize int
	// MaxWaiters caps listeners concurrently blocked on the loop.
	MaxWaiters int

	// SlotRetryLimit is how many unparseable slot-text messages are
	// tolerated before the flow is cancelled.
	SlotRetryLimit int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsModelTierEnabled reports whether the remote completion service is
// configured. Absence is a valid operating mode, not a failure.
func (p *Profile) IsModelTierEnabled() bool {
	return p.OpenAIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from RESERVE_* environment variables.
func (p *Profile) FromEnv() {
	p.Timezone = getEnvOrDefault("RESERVE_TIMEZONE", "Europe/Moscow")

	p.BotToken = os.Getenv("RESERVE_BOT_TOKEN")
	p.WebhookSecret = os.Getenv("RESERVE_WEBHOOK_SECRET")
	if v := os.Getenv("RESERVE_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.AdminChatID = id
		}
	}

	p.OpenAIAPIKey = os.Getenv("RESERVE_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("RESERVE_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.OpenAIModel = getEnvOrDefault("RESERVE_OPENAI_MODEL", "gpt-4o-mini")

	p.ExtractTimeout = getDurationEnvOrDefault("RESERVE_EXTRACT_TIMEOUT", 20*time.Second)
	p.HandoffTimeout = getDurationEnvOrDefault("RESERVE_HANDOFF_TIMEOUT", 10*time.Second)
	p.QueueSize = getIntEnvOrDefault("RESERVE_QUEUE_SIZE", 256)
	p.MaxWaiters = getIntEnvOrDefault("RESERVE_MAX_WAITERS", 64)
	p.SlotRetryLimit = getIntEnvOrDefault("RESERVE_SLOT_RETRY_LIMIT", 3)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Timezone == "" {
		p.Timezone = "Europe/Moscow"
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", p.Timezone)
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unknown store driver %q: only 'sqlite' and 'postgres' are supported", p.Driver)
	}

	if p.Driver == "sqlite" {
		if p.Mode == "prod" && p.Data == "" {
			p.Data = "/var/opt/reserve"
		}
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("reserve_%s.db", p.Mode))
		}
	} else if p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.QueueSize <= 0 {
		p.QueueSize = 256
	}
	if p.MaxWaiters <= 0 {
		p.MaxWaiters = 64
	}
	if p.SlotRetryLimit <= 0 {
		p.SlotRetryLimit = 3
	}
	if p.ExtractTimeout <= 0 {
		p.ExtractTimeout = 20 * time.Second
	}
	if p.HandoffTimeout <= 0 {
		p.HandoffTimeout = 10 * time.Second
	}

	return nil
}

// Location returns the parsed reference zone. Validate must have been
// called first.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
