// Package config provides configuration management for dustline.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/types"
)

// Analysis bounds
const (
	MinDepth     = 1
	MaxDepth     = 20
	MinNodeLimit = 10
	MaxNodeLimit = 5000
)

// DefaultRateTiers is the tier table used when RATE_TIERS is unset.
// A trailing '*' marks the privacy-floor reference tier.
const DefaultRateTiers = "mid-level:200:0,senior:450:150*,expert:1000:150"

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Analysis    AnalysisConfig
	Attribution AttributionConfig
	Sources     SourcesConfig
	RateTiers   []types.RateTier
	Logging     LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration.
// An empty Host disables the Postgres attribution store.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// DSN builds a postgres connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

// Enabled reports whether a Postgres host is configured
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// RedisConfig holds Redis configuration.
// An empty Host disables the transaction cache.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// CacheConfig holds transaction cache configuration
type CacheConfig struct {
	TTL        time.Duration // fully spent transactions
	HistoryTTL time.Duration // address histories and transactions with unspent outputs
}

// AnalysisConfig holds per-run traversal parameters
type AnalysisConfig struct {
	Depth                 int
	NodeLimit             int
	Direction             types.Direction
	Thorough              bool
	WalletExplorerEnabled bool
	WalletExplorerSample  int
	Workers               int
}

// Validate rejects out-of-range parameters before any traversal starts
func (a AnalysisConfig) Validate() error {
	if a.Depth < MinDepth || a.Depth > MaxDepth {
		return apperrors.NewInvalidParameterError("depth",
			fmt.Sprintf("must be between %d and %d, got %d", MinDepth, MaxDepth, a.Depth))
	}
	if a.NodeLimit < MinNodeLimit || a.NodeLimit > MaxNodeLimit {
		return apperrors.NewInvalidParameterError("nodeLimit",
			fmt.Sprintf("must be between %d and %d, got %d", MinNodeLimit, MaxNodeLimit, a.NodeLimit))
	}
	if !a.Direction.IsValid() {
		return apperrors.NewInvalidParameterError("direction",
			fmt.Sprintf("must be forward, backward or both, got %q", a.Direction))
	}
	if a.WalletExplorerSample < 0 {
		return apperrors.NewInvalidParameterError("walletExplorerSample", "must not be negative")
	}
	return nil
}

// AttributionConfig holds attribution tier configuration
type AttributionConfig struct {
	ArkhamAPIKey string
	EntitiesFile string
}

// SourcesConfig holds external source endpoints and request rates
type SourcesConfig struct {
	EsploraPrimary    string
	EsploraSecondary  string
	WalletExplorerURL string
	ArkhamURL         string
	EsploraRPS        float64
	WalletExplorerRPS float64
	ArkhamRPS         float64
	RequestTimeout    time.Duration
	HistoryLimit      int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	tiers, err := ParseRateTiers(getEnv("RATE_TIERS", DefaultRateTiers))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", ""),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "dustline"),
				User:           getEnv("POSTGRES_USER", "dustline"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			TTL:        getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			HistoryTTL: getEnvAsDuration("CACHE_HISTORY_TTL", 10*time.Minute),
		},
		Analysis: AnalysisConfig{
			Depth:                 getEnvAsInt("DUSTLINE_DEPTH", 5),
			NodeLimit:             getEnvAsInt("DUSTLINE_NODE_LIMIT", 500),
			Direction:             types.Direction(getEnv("DUSTLINE_DIRECTION", string(types.DirectionForward))),
			Thorough:              getEnvAsBool("DUSTLINE_THOROUGH", false),
			WalletExplorerEnabled: getEnvAsBool("DUSTLINE_WALLETEXPLORER", true),
			WalletExplorerSample:  getEnvAsInt("DUSTLINE_WE_SAMPLE", 200),
			Workers:               getEnvAsInt("DUSTLINE_WORKERS", 5),
		},
		Attribution: AttributionConfig{
			ArkhamAPIKey: getEnv("DUSTLINE_ARKHAM_KEY", ""),
			EntitiesFile: getEnv("DUSTLINE_ENTITIES_FILE", "data/entities.json"),
		},
		Sources: SourcesConfig{
			EsploraPrimary:    getEnv("ESPLORA_PRIMARY", "https://mempool.space/api"),
			EsploraSecondary:  getEnv("ESPLORA_SECONDARY", "https://blockstream.info/api"),
			WalletExplorerURL: getEnv("WALLETEXPLORER_URL", "https://www.walletexplorer.com/api/1"),
			ArkhamURL:         getEnv("ARKHAM_URL", "https://api.arkhamintelligence.com"),
			EsploraRPS:        getEnvAsFloat("ESPLORA_RPS", 8),
			WalletExplorerRPS: getEnvAsFloat("WALLETEXPLORER_RPS", 0.8),
			ArkhamRPS:         getEnvAsFloat("ARKHAM_RPS", 5),
			RequestTimeout:    getEnvAsDuration("SOURCE_TIMEOUT", 15*time.Second),
			HistoryLimit:      getEnvAsInt("ESPLORA_HISTORY_LIMIT", 25),
		},
		RateTiers: tiers,
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// ParseRateTiers parses "name:rate:tooling[*],..." into rate tiers.
// When no tier carries '*', the middle tier becomes the reference.
func ParseRateTiers(table string) ([]types.RateTier, error) {
	var tiers []types.RateTier
	hasReference := false

	for _, part := range strings.Split(table, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		reference := strings.HasSuffix(part, "*")
		part = strings.TrimSuffix(part, "*")

		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, apperrors.NewInvalidParameterError("RATE_TIERS",
				fmt.Sprintf("tier %q must look like name:rate:tooling", part))
		}

		rate, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || rate < 0 {
			return nil, apperrors.NewInvalidParameterError("RATE_TIERS",
				fmt.Sprintf("tier %q has invalid hourly rate", fields[0]))
		}
		tooling, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || tooling < 0 {
			return nil, apperrors.NewInvalidParameterError("RATE_TIERS",
				fmt.Sprintf("tier %q has invalid tooling overhead", fields[0]))
		}

		if reference {
			if hasReference {
				return nil, apperrors.NewInvalidParameterError("RATE_TIERS", "more than one reference tier")
			}
			hasReference = true
		}

		tiers = append(tiers, types.RateTier{
			Name:            strings.TrimSpace(fields[0]),
			HourlyRate:      rate,
			ToolingOverhead: tooling,
			Reference:       reference,
		})
	}

	if len(tiers) == 0 {
		return nil, apperrors.NewInvalidParameterError("RATE_TIERS", "at least one tier is required")
	}
	if !hasReference {
		tiers[len(tiers)/2].Reference = true
	}
	return tiers, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
