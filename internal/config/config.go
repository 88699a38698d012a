package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"GO_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	// Redis
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// External user/organization directory
	DirectoryURL       string        `mapstructure:"DIRECTORY_URL"`
	DirectoryTimeout   time.Duration `mapstructure:"DIRECTORY_TIMEOUT"`
	DirectoryAttempts  int           `mapstructure:"DIRECTORY_ATTEMPTS"`
	DirectoryBaseDelay time.Duration `mapstructure:"DIRECTORY_BASE_DELAY"`
	DirectoryMaxDelay  time.Duration `mapstructure:"DIRECTORY_MAX_DELAY"`
	DirectoryJitter    float64       `mapstructure:"DIRECTORY_JITTER"`
	ProfileCacheTTL    time.Duration `mapstructure:"PROFILE_CACHE_TTL"`
	DirectoryCacheTTL  time.Duration `mapstructure:"DIRECTORY_CACHE_TTL"`

	// Member shown with a fixed name in conversation listings (platform support inbox)
	SystemMemberID   string `mapstructure:"SYSTEM_MEMBER_ID"`
	SystemMemberName string `mapstructure:"SYSTEM_MEMBER_NAME"`

	// Realtime
	RealtimeChannel string `mapstructure:"REALTIME_CHANNEL"`
	RealtimeFanout  bool   `mapstructure:"REALTIME_FANOUT"`
}

var defaults = map[string]interface{}{
	"GO_ENV":               "development",
	"LOG_LEVEL":            "info",
	"PORT":                 "8080",
	"DATABASE_URL":         "",
	"JWT_SECRET":           "",
	"FRONTEND_URL":         "http://localhost:5173",
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"DIRECTORY_URL":        "https://api.fyndah.com/api/v1",
	"DIRECTORY_TIMEOUT":    "10s",
	"DIRECTORY_ATTEMPTS":   3,
	"DIRECTORY_BASE_DELAY": "200ms",
	"DIRECTORY_MAX_DELAY":  "2s",
	"DIRECTORY_JITTER":     0.2,
	"PROFILE_CACHE_TTL":    "10m",
	"DIRECTORY_CACHE_TTL":  "1m",
	"SYSTEM_MEMBER_ID":     "admin_msg_id",
	"SYSTEM_MEMBER_NAME":   "Fyndah",
	"REALTIME_CHANNEL":     "messaging:realtime",
	"REALTIME_FANOUT":      false,
}

// Load reads configuration from the given env file (if present) and the
// process environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			log.Printf("No %s file found, relying on environment variables", path)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DirectoryURL == "" {
		errs = append(errs, errors.New("DIRECTORY_URL is required"))
	}
	if c.DirectoryAttempts < 1 {
		errs = append(errs, errors.New("DIRECTORY_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
