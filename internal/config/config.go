package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	DatabaseURL string `mapstructure:"database_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	JWTSecret string `mapstructure:"jwt_secret"`

	// PresenceTTL is how long a user stays online without any activity.
	PresenceTTL   time.Duration `mapstructure:"presence_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MatchResponseTimeout resolves unanswered match proposals as a skip.
	// Zero waits forever.
	MatchResponseTimeout time.Duration `mapstructure:"match_response_timeout"`
	// SendBuffer is the outbound queue size of each socket.
	SendBuffer int `mapstructure:"send_buffer"`
}

var defaults = map[string]any{
	"port":                   "8080",
	"environment":            "production",
	"log_level":              "info",
	"database_url":           "host=localhost user=user password=password dbname=campusconnect port=5432 sslmode=disable",
	"redis_addr":             "localhost:6379",
	"redis_password":         "",
	"redis_db":               0,
	"jwt_secret":             "",
	"presence_ttl":           5 * time.Minute,
	"sweep_interval":         5 * time.Minute,
	"match_response_timeout": 30 * time.Second,
	"send_buffer":            256,
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("config: PRESENCE_TTL must be positive, got %s", c.PresenceTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.MatchResponseTimeout < 0 {
		return fmt.Errorf("config: MATCH_RESPONSE_TIMEOUT must not be negative")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("config: SEND_BUFFER must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
