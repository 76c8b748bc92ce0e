package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Redis        RedisConfig        `yaml:"redis"`
	Review       ReviewConfig       `yaml:"review"`
	Notification NotificationConfig `yaml:"notification"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type LogConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error
	RetentionDays int    `yaml:"retention_days"` // system_logs retention; 0 disables cleanup
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// RedisConfig for optional async notification queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReviewConfig holds the review workflow deadlines and the sweep schedule.
type ReviewConfig struct {
	WindowDays      int     `yaml:"window_days"`       // days after completion before a one-sided review is revealed
	EditWindowHours int     `yaml:"edit_window_hours"` // hours an author may edit or withdraw a hidden review
	SweepSpec       string  `yaml:"sweep_spec"`        // cron spec for the overdue-review sweep
	SweepBatchSize  int     `yaml:"sweep_batch_size"`
	WriteRateLimit  float64 `yaml:"write_rate_limit"` // review writes per second per user
	WriteBurst      int     `yaml:"write_burst"`
}

// NotificationConfig configures the outbound reveal webhook. Secret, when
// set, signs each payload with HMAC-SHA256.
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Secret     string `yaml:"secret"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 30,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "campusgig.db",
		},
		JWT: JWTConfig{
			Secret: "campusgig-secret-key-change-in-production",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Review: ReviewConfig{
			WindowDays:      14,
			EditWindowHours: 24,
			SweepSpec:       "@every 5m",
			SweepBatchSize:  100,
			WriteRateLimit:  2,
			WriteBurst:      5,
		},
		Notification: NotificationConfig{
			TimeoutSec: 10,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if days := envInt("LOG_RETENTION_DAYS"); days > 0 {
		c.Log.RetentionDays = days
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if days := envInt("REVIEW_WINDOW_DAYS"); days > 0 {
		c.Review.WindowDays = days
	}
	if hours := envInt("REVIEW_EDIT_WINDOW_HOURS"); hours > 0 {
		c.Review.EditWindowHours = hours
	}
	if spec := os.Getenv("REVIEW_SWEEP_SPEC"); spec != "" {
		c.Review.SweepSpec = spec
	}
	if webhook := os.Getenv("NOTIFY_WEBHOOK_URL"); webhook != "" {
		c.Notification.WebhookURL = webhook
	}
	if secret := os.Getenv("NOTIFY_WEBHOOK_SECRET"); secret != "" {
		c.Notification.Secret = secret
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
