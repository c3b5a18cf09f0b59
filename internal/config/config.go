package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rongwang/envelope-wallet/internal/money"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Wallet      WalletConfig
	Share       ShareConfig
	AMQP        AMQPConfig
	Idempotency IdempotencyConfig
	Log         LogConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Backend    string // memory or postgres
	Host       string
	Port       int
	Username   string
	Password   string
	DBName     string
	SSLMode    string
	TestDBName string // Separate database for testing
}

// WalletConfig sets up new wallets
type WalletConfig struct {
	Currency       string
	InitialBalance string
}

// ShareConfig configures shared-envelope links
type ShareConfig struct {
	Secret   string
	BaseURL  string
	TokenTTL time.Duration
}

// AMQPConfig configures event publishing. Empty URL disables it.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// IdempotencyConfig bounds the idempotency key store
type IdempotencyConfig struct {
	Capacity int
	TTL      time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

var validBackends = []string{"memory", "postgres"}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadEnvFile loads variables from a .env file if one exists. Variables that
// are already set win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Backend:    getEnv("DATA_BACKEND", "memory"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			Username:   getEnv("DB_USERNAME", "postgres"),
			Password:   getEnv("DB_PASSWORD", "password"),
			DBName:     getEnv("DB_NAME", "wallet"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			TestDBName: getEnv("TEST_DB_NAME", "wallet_test"),
		},
		Wallet: WalletConfig{
			Currency:       getEnv("WALLET_CURRENCY", "USD"),
			InitialBalance: getEnv("WALLET_INITIAL_BALANCE", "1000.00"),
		},
		Share: ShareConfig{
			Secret:   getEnv("SHARE_SECRET", "change-me-share-secret"),
			BaseURL:  getEnv("SHARE_BASE_URL", "https://zappcash.app"),
			TokenTTL: getEnvAsDuration("SHARE_TOKEN_TTL", 0),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "wallet"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "wallet.transaction.recorded"),
		},
		Idempotency: IdempotencyConfig{
			Capacity: getEnvAsInt("IDEMPOTENCY_CAPACITY", 10000),
			TTL:      getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// InitialBalanceMoney parses the configured opening balance of new wallets
func (c *WalletConfig) InitialBalanceMoney() (money.Money, error) {
	return money.Parse(c.InitialBalance, c.Currency)
}

// Validate returns every configuration problem at once
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Server.Port))
	}

	if !slices.Contains(validBackends, c.Database.Backend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.Database.Backend, validBackends))
	}
	if c.Database.Backend == "postgres" && c.Database.DBName == "" {
		problems = append(problems, "DB_NAME cannot be empty when using postgres backend")
	}

	if len(strings.TrimSpace(c.Wallet.Currency)) < 3 {
		problems = append(problems, fmt.Sprintf("invalid wallet currency '%s'", c.Wallet.Currency))
	}
	if m, err := c.Wallet.InitialBalanceMoney(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid initial balance '%s': %v", c.Wallet.InitialBalance, err))
	} else if m.IsNegative() {
		problems = append(problems, "initial balance cannot be negative")
	}

	if c.Share.Secret == "" {
		problems = append(problems, "SHARE_SECRET cannot be empty")
	}
	if u, err := url.Parse(c.Share.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("invalid share base URL '%s'", c.Share.BaseURL))
	}

	if c.AMQP.URL != "" {
		if parsed, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.Idempotency.Capacity < 1 {
		problems = append(problems, "IDEMPOTENCY_CAPACITY must be positive")
	}
	if c.Idempotency.TTL <= 0 {
		problems = append(problems, "IDEMPOTENCY_TTL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
