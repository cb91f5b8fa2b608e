package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Logging    LoggingConfig
	CORS       CORSConfig
	Auth       AuthConfig
	Governance GovernanceConfig
	Providers  ProvidersConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Mode            string // "jwt", "oidc"
	JWTSecret       string
	EnableLocalAuth bool
	OIDC            OIDCConfig
}

// OIDCConfig holds OIDC configuration
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// GovernanceConfig holds governance engine configuration
type GovernanceConfig struct {
	SweepInterval  time.Duration
	RolloutPercent int    // percentage of users with agent actions enabled at all
	PolicyFile     string // optional YAML overrides for system defaults
	RateLimit      int
	RateWindow     time.Duration
	MaxRequestBody int64
}

// ProvidersConfig holds side-effect provider gateway configuration
type ProvidersConfig struct {
	EmailEndpoint string
	EmailAPIKey   string
	SMSEndpoint   string
	SMSAPIKey     string
	VoiceEndpoint string
	VoiceAPIKey   string
	TaskEndpoint  string
	TaskAPIKey    string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "aspira"),
			Password:        getEnv("DB_PASSWORD", "aspira"),
			Name:            getEnv("DB_NAME", "aspira"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8081"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Auth: AuthConfig{
			Mode:            getEnv("AUTH_MODE", "jwt"),
			JWTSecret:       getEnv("JWT_SECRET", ""),
			EnableLocalAuth: getEnv("ENABLE_LOCAL_AUTH", "true") == "true",
			OIDC: OIDCConfig{
				IssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
				ClientID:     getEnv("OIDC_CLIENT_ID", ""),
				ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OIDC_REDIRECT_URL", ""),
				Scopes:       getEnvSlice("OIDC_SCOPES", []string{"openid", "profile", "email"}),
			},
		},
		Governance: GovernanceConfig{
			SweepInterval:  getEnvDuration("GOVERNANCE_SWEEP_INTERVAL", 60*time.Second),
			RolloutPercent: getEnvInt("GOVERNANCE_ROLLOUT_PERCENT", 100),
			PolicyFile:     getEnv("GOVERNANCE_POLICY_FILE", ""),
			RateLimit:      getEnvInt("GOVERNANCE_RATE_LIMIT", 1000),
			RateWindow:     getEnvDuration("GOVERNANCE_RATE_WINDOW", time.Minute),
			MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		},
		Providers: ProvidersConfig{
			EmailEndpoint: getEnv("PROVIDER_EMAIL_ENDPOINT", ""),
			EmailAPIKey:   getEnv("PROVIDER_EMAIL_API_KEY", ""),
			SMSEndpoint:   getEnv("PROVIDER_SMS_ENDPOINT", ""),
			SMSAPIKey:     getEnv("PROVIDER_SMS_API_KEY", ""),
			VoiceEndpoint: getEnv("PROVIDER_VOICE_ENDPOINT", ""),
			VoiceAPIKey:   getEnv("PROVIDER_VOICE_API_KEY", ""),
			TaskEndpoint:  getEnv("PROVIDER_TASK_ENDPOINT", ""),
			TaskAPIKey:    getEnv("PROVIDER_TASK_API_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}
