package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mapcore server
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Map       MapConfig
	Logging   LoggingConfig
	Profiling ProfilingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
	// AllowedOrigins are the browser origins accepted by CORS and the
	// tracking WebSocket. Empty uses the local development defaults.
	AllowedOrigins []string
}

// DatabaseConfig holds the map catalog connection configuration.
// The catalog is optional; db:// map URLs fail when it is disabled.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	JWTSecret         string
	JWTExpiration     time.Duration
	AdminUsername     string
	AdminPasswordHash string
	BCryptCost        int
}

// MapConfig holds map loading and resolver configuration
type MapConfig struct {
	// URL is loaded as the active map at startup when set
	URL string
	// DynamicLoadURL wraps maps without a region tree in a dynamic loader
	DynamicLoadURL string
	FetchTimeout   time.Duration
	RetryCount     int
	// LoadTimeout bounds ray queries that wait for dynamic data
	LoadTimeout time.Duration
	LODFactor   float64
	// StreamInterval is how often dynamic nodes are loaded and purged
	// around the camera. Zero disables the background pass.
	StreamInterval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	OutputPath string
}

// ProfilingConfig controls the operation profiler
type ProfilingConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables and .env file
// It returns a Config struct with all settings populated
// The .env file is loaded from the current working directory
func Load() (*Config, error) {
	// Environment variables can still be set directly without a .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found (this is OK if using environment variables): %v", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),

			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Enabled:         getBoolEnv("MAP_CATALOG_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getIntEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "mapcore_dev"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConnections:  getIntEnv("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			JWTExpiration:     getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			BCryptCost:        getIntEnv("BCRYPT_COST", 10),
		},
		Map: MapConfig{
			URL:            getEnv("MAP_URL", ""),
			DynamicLoadURL: getEnv("MAP_DYNAMIC_LOAD_URL", ""),
			FetchTimeout:   getDurationEnv("MAP_FETCH_TIMEOUT", 30*time.Second),
			RetryCount:     getIntEnv("MAP_FETCH_RETRIES", 3),
			LoadTimeout:    getDurationEnv("MAP_LOAD_TIMEOUT", 30*time.Second),
			LODFactor:      getFloatEnv("MAP_LOD_FACTOR", 1.0),
			StreamInterval: getDurationEnv("MAP_STREAM_INTERVAL", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			OutputPath: getEnv("LOG_OUTPUT_PATH", ""),
		},
		Profiling: ProfilingConfig{
			Enabled: getBoolEnv("PROFILING_ENABLED", true),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when MAP_CATALOG_ENABLED is set")
	}
	if c.Map.RetryCount < 0 {
		return fmt.Errorf("MAP_FETCH_RETRIES must not be negative")
	}
	if c.Map.LODFactor <= 0 {
		return fmt.Errorf("MAP_LOD_FACTOR must be positive")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid float value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return floatValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return boolValue
}

// getListEnv reads a comma separated list
func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return duration
}
