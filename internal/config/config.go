package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the portal process.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Search   SearchConfig   `yaml:"search"`
	Mail     MailConfig     `yaml:"mail"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Session  SessionConfig  `yaml:"session"`
	Notify   NotifyConfig   `yaml:"notify"`
	Limits   LimitsConfig   `yaml:"limits"`
	Org      OrgConfig      `yaml:"org"`
	Log      LogConfig      `yaml:"log"`
}

// OrgConfig names the organization that untagged submissions and
// signups fall into.
type OrgConfig struct {
	DefaultID string `yaml:"default_id"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// BaseURL is the externally visible origin, used in emailed links.
	BaseURL        string   `yaml:"base_url"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type SearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

type MailConfig struct {
	// BaseURL overrides the provider endpoint; empty means the hosted API.
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type OAuthConfig struct {
	GitHub OAuthProvider `yaml:"github"`
	Google OAuthProvider `yaml:"google"`
}

type OAuthProvider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Configured reports whether the provider has credentials.
func (p OAuthProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type NotifyConfig struct {
	Stream      string `yaml:"stream"`
	Group       string `yaml:"group"`
	Concurrency int    `yaml:"concurrency"`
}

type LimitsConfig struct {
	// LoginPerMinute bounds login and signup attempts per client IP.
	LoginPerMinute int `yaml:"login_per_minute"`
	// ResetPerHour bounds password reset requests per client IP.
	ResetPerHour int `yaml:"reset_per_hour"`
	// ApplyPerMinute bounds public application submissions per client IP.
	ApplyPerMinute int `yaml:"apply_per_minute"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. Path may be empty when the environment carries
// everything.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Storage: StorageConfig{Bucket: "resumes"},
		Search:  SearchConfig{Addresses: []string{"http://localhost:9200"}},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Notify: NotifyConfig{
			Stream:      "applydesk:notify",
			Group:       "portal",
			Concurrency: 2,
		},
		Limits: LimitsConfig{
			LoginPerMinute: 10,
			ResetPerHour:   5,
			ApplyPerMinute: 20,
		},
		Org: OrgConfig{DefaultID: "default"},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.HTTP.BaseURL, "BASE_URL")
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.HTTP.TrustedProxies = splitList(v)
	}
	setString(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Storage.Endpoint, "S3_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "S3_SECRET_KEY")
	setString(&cfg.Storage.Bucket, "S3_BUCKET")
	setBool(&cfg.Storage.UseSSL, "S3_USE_SSL")
	if v := os.Getenv("ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Search.Addresses = splitList(v)
	}
	setString(&cfg.Search.Username, "ELASTICSEARCH_USERNAME")
	setString(&cfg.Search.Password, "ELASTICSEARCH_PASSWORD")
	setString(&cfg.Mail.BaseURL, "MANDRILL_BASE_URL")
	setString(&cfg.Mail.APIKey, "MANDRILL_API_KEY")
	setString(&cfg.Mail.FromEmail, "MAIL_FROM_EMAIL")
	setString(&cfg.Mail.FromName, "MAIL_FROM_NAME")
	setString(&cfg.OAuth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	setString(&cfg.OAuth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&cfg.OAuth.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.OAuth.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setDuration(&cfg.Session.TTL, "SESSION_TTL")
	setString(&cfg.Notify.Stream, "NOTIFY_STREAM")
	setString(&cfg.Notify.Group, "NOTIFY_GROUP")
	setInt(&cfg.Notify.Concurrency, "NOTIFY_CONCURRENCY")
	setInt(&cfg.Limits.LoginPerMinute, "LIMIT_LOGIN_PER_MINUTE")
	setInt(&cfg.Limits.ResetPerHour, "LIMIT_RESET_PER_HOUR")
	setInt(&cfg.Limits.ApplyPerMinute, "LIMIT_APPLY_PER_MINUTE")
	setString(&cfg.Org.DefaultID, "DEFAULT_ORG_ID")
	setString(&cfg.Log.Level, "LOG_LEVEL")
}

func validate(cfg Config) error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if cfg.HTTP.BaseURL == "" {
		return fmt.Errorf("http.base_url is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if len(cfg.Search.Addresses) == 0 {
		return fmt.Errorf("search.addresses is required")
	}
	if cfg.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if cfg.Notify.Concurrency <= 0 {
		return fmt.Errorf("notify.concurrency must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
