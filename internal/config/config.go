package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Mail      MailConfig      `yaml:"mail"`
	Safety    SafetyConfig    `yaml:"safety"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	BaseURL            string `yaml:"base_url"`
	TrackingURL        string `yaml:"tracking_url"`
	AdminOrigin        string `yaml:"admin_origin"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// DatabaseConfig selects the storage driver. "memory" keeps everything in
// process and is meant for local runs only.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	AMQPURL string `yaml:"amqp_url"`
}

type SchedulerConfig struct {
	Disabled        bool `yaml:"disabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

type MailConfig struct {
	From       string `yaml:"from"`
	DebriefURL string `yaml:"debrief_url"`
}

type SafetyConfig struct {
	DoNotSendDomains []string `yaml:"do_not_send_domains"`
	IPHashSalt       string   `yaml:"ip_hash_salt"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultDoNotSendDomains are consumer mailbox providers that simulations must never reach.
var DefaultDoNotSendDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "hotmail.com"}

// Interval returns the scheduler tick interval.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// DSN builds the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// PublicTrackingURL is the base used for pixel and click links in outgoing mail.
func (c ServerConfig) PublicTrackingURL() string {
	if c.TrackingURL != "" {
		return strings.TrimRight(c.TrackingURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// DefaultPath is the config file named by CONFIG_FILE, or config.yaml.
func DefaultPath() string {
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads the YAML file, then a .env file if present, then applies
// environment overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("PUBLIC_TRACKING_URL"); v != "" {
		cfg.Server.TrackingURL = v
	}
	if v := os.Getenv("ADMIN_ORIGIN"); v != "" {
		cfg.Server.AdminOrigin = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = n
		}
	}

	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Queue.AMQPURL = v
	}

	if v := os.Getenv("SCHEDULER_DISABLED"); v != "" {
		cfg.Scheduler.Disabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SCHEDULER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.IntervalSeconds = n
		}
	}

	if v := os.Getenv("MAIL_FROM"); v != "" {
		cfg.Mail.From = v
	}
	if v := os.Getenv("DEBRIEF_URL"); v != "" {
		cfg.Mail.DebriefURL = v
	}
	if v := os.Getenv("DO_NOT_SEND_DOMAINS"); v != "" {
		cfg.Safety.DoNotSendDomains = splitList(v)
	}
	if v := os.Getenv("IP_HASH_SALT"); v != "" {
		cfg.Safety.IPHashSalt = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Server.AdminOrigin == "" {
		cfg.Server.AdminOrigin = "*"
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 100
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Scheduler.IntervalSeconds == 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "security-training@example.com"
	}
	if cfg.Mail.DebriefURL == "" {
		cfg.Mail.DebriefURL = "https://intranet/security-awareness"
	}
	if len(cfg.Safety.DoNotSendDomains) == 0 {
		cfg.Safety.DoNotSendDomains = append([]string(nil), DefaultDoNotSendDomains...)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
