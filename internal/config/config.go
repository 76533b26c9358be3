package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	AzureAD   AzureADConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BackendConfig points at the remote document/chat API the gateway fronts.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AzureADConfig describes the identity provider tenant and the scope the
// backend API expects in access tokens.
type AzureADConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIScope     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// SessionConfig controls the gateway session cookie and how often an
// authenticated session is re-verified against the backend.
type SessionConfig struct {
	CookieName      string
	TTL             time.Duration
	RecheckInterval time.Duration
	CookieSecure    bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("SERVER_PUBLIC_URL", "http://localhost:8080")
	viper.SetDefault("BACKEND_TIMEOUT", 30)
	viper.SetDefault("AZURE_AD_TENANT_ID", "common")
	viper.SetDefault("SESSION_COOKIE", "docport_session")
	viper.SetDefault("SESSION_TTL_MINUTES", 10080)
	viper.SetDefault("SESSION_RECHECK_SECONDS", 300)
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			PublicURL:    viper.GetString("SERVER_PUBLIC_URL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: getEnvOrPanic("BACKEND_API_URL"),
			Timeout: time.Duration(viper.GetInt("BACKEND_TIMEOUT")) * time.Second,
		},
		AzureAD: AzureADConfig{
			TenantID:     viper.GetString("AZURE_AD_TENANT_ID"),
			ClientID:     viper.GetString("AZURE_AD_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_AD_CLIENT_SECRET"),
			RedirectURL:  viper.GetString("AZURE_AD_REDIRECT_URL"),
			APIScope:     viper.GetString("AZURE_AD_API_SCOPE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Session: SessionConfig{
			CookieName:      viper.GetString("SESSION_COOKIE"),
			TTL:             time.Duration(viper.GetInt("SESSION_TTL_MINUTES")) * time.Minute,
			RecheckInterval: time.Duration(viper.GetInt("SESSION_RECHECK_SECONDS")) * time.Second,
			CookieSecure:    viper.GetString("SERVER_ENVIRONMENT") == "production",
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.AzureAD.ClientID == "" {
		log.Println("WARNING: AZURE_AD_CLIENT_ID is not set; interactive sign-in will be unavailable")
	}
	if cfg.AzureAD.RedirectURL == "" {
		cfg.AzureAD.RedirectURL = cfg.Server.PublicURL + "/auth/callback"
	}

	return cfg, nil
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
