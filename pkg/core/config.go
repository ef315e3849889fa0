package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a studyctx client.
//
// Example:
//
//	config := &core.Config{
//	    Database: core.DatabaseConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./studyctx.db",
//	        },
//	    },
//	}
//	client, err := core.NewClient(config)
type Config struct {
	// Database contains the row store configuration.
	Database DatabaseConfig `json:"database"`

	// Cache contains TTLs for the per-service read caches.
	Cache CacheConfig `json:"cache"`

	// Memory contains conversation memory store settings.
	Memory MemoryConfig `json:"memory"`

	// Context contains context builder settings.
	Context ContextConfig `json:"context"`
}

// DatabaseConfig contains configuration for the row store.
//
// Supported providers: sqlite, postgres, mysql
type DatabaseConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific settings.
	Config map[string]interface{} `json:"config"`
}

// CacheConfig contains TTLs for the read caches. Zero values fall back to
// the service defaults.
type CacheConfig struct {
	// ProfileTTL is how long computed student profiles stay cached.
	ProfileTTL time.Duration `json:"profile_ttl,omitempty"`

	// KnowledgeTTL is how long knowledge search results stay cached.
	KnowledgeTTL time.Duration `json:"knowledge_ttl,omitempty"`

	// OptimizerTTL is how long optimization results stay cached.
	OptimizerTTL time.Duration `json:"optimizer_ttl,omitempty"`
}

// MemoryConfig contains conversation memory store settings.
type MemoryConfig struct {
	// CleanupInterval is the scheduled expiry sweep interval.
	// Default: 24h.
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`

	// SimilarityThreshold overrides the auto-linking similarity
	// threshold. Default: 0.7.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// ContextConfig contains context builder settings.
type ContextConfig struct {
	// DefaultTokenLimit caps built contexts when a request carries no
	// explicit limit or level envelope. Default: 2000.
	DefaultTokenLimit int `json:"default_token_limit,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - PROFILE_CACHE_TTL, KNOWLEDGE_CACHE_TTL, OPTIMIZER_CACHE_TTL
//     (Go duration strings, e.g. "5m")
//   - CLEANUP_INTERVAL, SIMILARITY_THRESHOLD, DEFAULT_TOKEN_LIMIT
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	databaseConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		databaseConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./studyctx.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		databaseConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "studyctx"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		databaseConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "studyctx"),
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Provider: provider,
			Config:   databaseConfig,
		},
		Cache: CacheConfig{
			ProfileTTL:   getDurationOrDefault("PROFILE_CACHE_TTL", 5*time.Minute),
			KnowledgeTTL: getDurationOrDefault("KNOWLEDGE_CACHE_TTL", 10*time.Minute),
			OptimizerTTL: getDurationOrDefault("OPTIMIZER_CACHE_TTL", 15*time.Minute),
		},
		Memory: MemoryConfig{
			CleanupInterval:     getDurationOrDefault("CLEANUP_INTERVAL", 24*time.Hour),
			SimilarityThreshold: getFloatOrDefault("SIMILARITY_THRESHOLD", 0.7),
		},
		Context: ContextConfig{
			DefaultTokenLimit: getIntOrDefault("DEFAULT_TOKEN_LIMIT", 2000),
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that the database provider is one of the supported backends and
// that the tuning values are inside their valid ranges.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewError("Validate", ErrInvalidConfig)
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return NewError("Validate", ErrInvalidConfig)
	}
	if c.Context.DefaultTokenLimit < 0 {
		return NewError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
