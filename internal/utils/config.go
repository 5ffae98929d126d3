package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"blurtbb/internal/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Chain    ChainConfig
	Forum    ForumConfig
	Live     LiveConfig
	Database DatabaseConfig
}

type AppConfig struct {
	Name    string
	Version string
}

type ServerConfig struct {
	Port          int
	SiteURL       string
	SessionSecret string
	SessionCipher string // 16, 24 or 32 bytes; derived from SessionSecret when empty
	TemplatesDir  string
	StaticDir     string
}

// ChainConfig describes the RPC nodes and the signing parameters
type ChainConfig struct {
	Endpoints         []string // first entry is the default
	ChainID           string
	AddressPrefix     string
	Timeout           time.Duration
	Attempts          int
	RequestsPerSecond float64
	MaxInFlight       int // concurrent RPCs per reply tree fetch
}

type ForumConfig struct {
	Categories        []models.Category
	AdminAccounts     []string
	BlockedAuthors    []string
	MaxAcceptedPayout string
	Beneficiary       string
	BeneficiaryWeight int
	RepliesPerPage    int
	TopicsPerPage     int
}

// LiveConfig controls vote refresh and submission polling
type LiveConfig struct {
	PollInterval   time.Duration
	SubmitInterval time.Duration
	SubmitAttempts int
}

type DatabaseConfig struct {
	Driver string // postgres or sqlite
	DSN    string
}

// DefaultEndpoint is the node used when a user has not picked one.
func (c ChainConfig) DefaultEndpoint() string {
	if len(c.Endpoints) == 0 {
		return ""
	}
	return c.Endpoints[0]
}

// IsAdmin reports whether account may manage the block-list
func (c ForumConfig) IsAdmin(account string) bool {
	for _, a := range c.AdminAccounts {
		if a == account {
			return true
		}
	}
	return false
}

// Category looks up a configured category by tag
func (c ForumConfig) Category(tag string) (models.Category, bool) {
	for _, cat := range c.Categories {
		if cat.Tag == tag {
			return cat, true
		}
	}
	return models.Category{}, false
}

// LoadConfig loads configuration from the environment, reading envPath first if it exists
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		log.WithField("file", envPath).Info("No .env file found, reading env vars from system")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "BlurtBB"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Server: ServerConfig{
			Port:          getEnvAsInt("PORT", 8080),
			SiteURL:       getEnv("SITE_URL", "http://localhost:8080"),
			SessionSecret: getEnv("SESSION_SECRET", ""),
			SessionCipher: getEnv("SESSION_CIPHER", ""),
			TemplatesDir:  getEnv("TEMPLATES_DIR", "./web/templates"),
			StaticDir:     getEnv("STATIC_DIR", "./web/static"),
		},
		Chain: ChainConfig{
			Endpoints:         getEnvAsList("BLURT_RPC_ENDPOINTS", ",", []string{"https://rpc.blurt.world", "https://blurt-rpc.saboin.com"}),
			ChainID:           getEnv("BLURT_CHAIN_ID", "cd8d90f29ae273abec3eaa7731e25934c63eb654d55080caff2ebb7f5df6381f"),
			AddressPrefix:     getEnv("BLURT_ADDRESS_PREFIX", "BLT"),
			Timeout:           getEnvAsDuration("BLURT_RPC_TIMEOUT", 15*time.Second),
			Attempts:          getEnvAsInt("BLURT_RPC_ATTEMPTS", 3),
			RequestsPerSecond: getEnvAsFloat("BLURT_RPC_RATE", 20),
			MaxInFlight:       getEnvAsInt("BLURT_RPC_MAX_IN_FLIGHT", 8),
		},
		Forum: ForumConfig{
			Categories:        parseCategories(getEnv("FORUM_CATEGORIES", "blurtbb-general|General|Anything about Blurt;blurtbb-dev|Development|Apps, tools and code;blurtbb-help|Help|Questions and answers")),
			AdminAccounts:     getEnvAsList("FORUM_ADMINS", ",", nil),
			BlockedAuthors:    getEnvAsList("BLOCKED_AUTHORS", ",", nil),
			MaxAcceptedPayout: getEnv("FORUM_MAX_ACCEPTED_PAYOUT", "1000000.000 BLURT"),
			Beneficiary:       getEnv("FORUM_BENEFICIARY", ""),
			BeneficiaryWeight: getEnvAsInt("FORUM_BENEFICIARY_WEIGHT", 0),
			RepliesPerPage:    getEnvAsInt("FORUM_REPLIES_PER_PAGE", 20),
			TopicsPerPage:     getEnvAsInt("FORUM_TOPICS_PER_PAGE", 20),
		},
		Live: LiveConfig{
			PollInterval:   getEnvAsDuration("LIVE_POLL_INTERVAL", 30*time.Second),
			SubmitInterval: getEnvAsDuration("SUBMIT_POLL_INTERVAL", 2*time.Second),
			SubmitAttempts: getEnvAsInt("SUBMIT_POLL_ATTEMPTS", 15),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			DSN:    getEnv("DATABASE_URL", "./blurtbb.db"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"endpoints":  config.Chain.Endpoints,
		"categories": len(config.Forum.Categories),
		"db_driver":  config.Database.Driver,
	}).Info("Config loaded successfully")
	return config, nil
}

// parseCategories reads "tag|Name|Description" entries separated by semicolons
func parseCategories(s string) []models.Category {
	var categories []models.Category
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 3)
		cat := models.Category{Tag: strings.TrimSpace(parts[0])}
		cat.Name = cat.Tag
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			cat.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			cat.Description = strings.TrimSpace(parts[2])
		}
		if cat.Tag != "" {
			categories = append(categories, cat)
		}
	}
	return categories
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key, sep string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.Chain.Endpoints) == 0 {
		return fmt.Errorf("BLURT_RPC_ENDPOINTS must list at least one node")
	}
	if len(config.Chain.ChainID) != 64 {
		return fmt.Errorf("BLURT_CHAIN_ID must be 32 hex-encoded bytes")
	}
	if config.Chain.MaxInFlight < 1 {
		return fmt.Errorf("BLURT_RPC_MAX_IN_FLIGHT must be positive")
	}
	if config.Chain.Attempts < 1 {
		return fmt.Errorf("BLURT_RPC_ATTEMPTS must be positive")
	}
	if len(config.Forum.Categories) == 0 {
		return fmt.Errorf("FORUM_CATEGORIES must define at least one category")
	}
	if config.Live.PollInterval <= 0 || config.Live.SubmitInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if config.Live.SubmitAttempts < 1 {
		return fmt.Errorf("SUBMIT_POLL_ATTEMPTS must be positive")
	}
	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", config.Database.Driver)
	}
	if n := len(config.Server.SessionCipher); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("SESSION_CIPHER must be 16, 24 or 32 bytes")
	}
	if config.Forum.BeneficiaryWeight < 0 || config.Forum.BeneficiaryWeight > 10000 {
		return fmt.Errorf("FORUM_BENEFICIARY_WEIGHT must be between 0 and 10000")
	}
	if config.Forum.RepliesPerPage < 1 {
		config.Forum.RepliesPerPage = 20
	}
	if config.Forum.TopicsPerPage < 1 {
		config.Forum.TopicsPerPage = 20
	}
	return nil
}
