package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pendergraft/ntunames/internal/validation"
)

// Defaults for the public Sepolia deployment.
const (
	DefaultContractAddress = "0xF963010d45Bc1053875171961A8A1516148D705a"
	DefaultChainID         = 11155111
	DefaultRPCURL          = "https://rpc.sepolia.org"
)

// Failed-auction policies. See auction/domain.FailedAuctionPolicy.
const (
	FailedPolicyIgnoreFinalized    = "ignore-finalized"
	FailedPolicyRequireUnfinalized = "require-unfinalized"
)

// Config holds all configuration for the server and CLI
type Config struct {
	Server    ServerConfig
	Chain     ChainConfig
	Wallet    WalletConfig
	Auction   AuctionConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Proxy     ProxyConfig
	Security  SecurityConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// ChainConfig identifies the node and the registrar deployment
type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	PollSeconds     int // chain ID watch interval for the wallet session
}

// WalletConfig holds signer settings. Only the CLI uses these.
type WalletConfig struct {
	KeystorePath     string
	KeystorePassword string
	PrivateKey       string
}

// AuctionConfig holds phase resolution settings
type AuctionConfig struct {
	FailedPolicy   string
	CommitGasLimit uint64
}

// StorageConfig holds bid journal storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// CacheConfig holds registered-domain cache settings
type CacheConfig struct {
	Enabled        bool
	MaxSizeMB      int
	TTLSeconds     int
	RefreshSeconds int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// SecurityConfig holds request filtering settings
type SecurityConfig struct {
	FilterEnabled bool
}

// AuthConfig holds the API keys accepted on the bid journal routes. With no
// keys the journal is served openly.
type AuthConfig struct {
	JournalKeys []string
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
			ContractAddress: getEnv("CONTRACT_ADDRESS", DefaultContractAddress),
			ChainID:         getEnvInt64("CHAIN_ID", DefaultChainID),
			PollSeconds:     getEnvInt("CHAIN_POLL_SECONDS", 15),
		},
		Wallet: WalletConfig{
			KeystorePath:     getEnv("KEYSTORE_PATH", ""),
			KeystorePassword: getEnv("KEYSTORE_PASSWORD", ""),
			PrivateKey:       getEnv("PRIVATE_KEY", ""),
		},
		Auction: AuctionConfig{
			FailedPolicy:   getEnv("AUCTION_FAILED_POLICY", FailedPolicyIgnoreFinalized),
			CommitGasLimit: uint64(getEnvInt64("COMMIT_GAS_LIMIT", 300000)),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/ntunames.db"),
			},
		},
		Cache: CacheConfig{
			Enabled:        getEnvBool("CACHE_ENABLED", true),
			MaxSizeMB:      getEnvInt("CACHE_MAX_SIZE_MB", 16),
			TTLSeconds:     getEnvInt("CACHE_TTL_SECONDS", 300),
			RefreshSeconds: getEnvInt("CACHE_REFRESH_SECONDS", 60),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
		},
		Auth: AuthConfig{
			JournalKeys: getEnvStringSlice("JOURNAL_API_KEYS", nil),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail on first use.
func (c *Config) Validate() error {
	if err := validation.ValidateAddress(c.Chain.ContractAddress); err != nil {
		return fmt.Errorf("CONTRACT_ADDRESS: %w", err)
	}
	if err := validation.ValidateChainID(c.Chain.ChainID); err != nil {
		return fmt.Errorf("CHAIN_ID: %w", err)
	}
	switch c.Auction.FailedPolicy {
	case FailedPolicyIgnoreFinalized, FailedPolicyRequireUnfinalized:
	default:
		return fmt.Errorf("AUCTION_FAILED_POLICY: unknown policy %q", c.Auction.FailedPolicy)
	}
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("STORAGE_TYPE: unknown storage type %q", c.Storage.Type)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
