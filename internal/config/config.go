package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Graph      GraphConfig      `yaml:"graph"`
	Sync       SyncConfig       `yaml:"sync"`
	Image      ImageConfig      `yaml:"image"`
	Blob       BlobConfig       `yaml:"blob"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   string           `yaml:"log_level"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// Enabled reports whether ingestion events should be published.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type GraphConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Interval        time.Duration `yaml:"interval"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxItemsPerPass int           `yaml:"max_items_per_pass"`
	MaxPagesPerPass int           `yaml:"max_pages_per_pass"`
}

type ImageConfig struct {
	MaxDimension int           `yaml:"max_dimension"`
	Quality      int           `yaml:"quality"`
	Folder       string        `yaml:"folder"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
}

// BlobConfig uses a tagged union: Type selects which other fields are relevant.
type BlobConfig struct {
	Type string `yaml:"type"` // "filesystem" or "s3"

	// filesystem
	Root string `yaml:"root,omitempty"`

	// s3
	S3Bucket        string `yaml:"s3_bucket,omitempty"`
	S3Prefix        string `yaml:"s3_prefix,omitempty"`
	S3Region        string `yaml:"s3_region,omitempty"`
	S3Endpoint      string `yaml:"s3_endpoint,omitempty"`
	S3AccessKey     string `yaml:"s3_access_key,omitempty"`
	S3SecretKey     string `yaml:"s3_secret_key,omitempty"`
	S3PublicBaseURL string `yaml:"s3_public_base_url,omitempty"`
}

type TokenStoreConfig struct {
	Type string `yaml:"type"` // "postgres" or "keyring"
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	PublicURL      string        `yaml:"public_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{Sync: SyncConfig{Enabled: true, Interval: 30 * time.Minute}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "social_feed"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "items"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "cms_social_items"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = "https://graph.facebook.com/v16.0"
	}
	if c.Graph.Timeout == 0 {
		c.Graph.Timeout = 30 * time.Second
	}
	// An explicit zero interval leaves scheduling to an external trigger.
	if c.Sync.Interval == 0 {
		c.Sync.Enabled = false
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 5 * time.Minute
	}
	if c.Sync.MaxItemsPerPass == 0 {
		c.Sync.MaxItemsPerPass = 100
	}
	if c.Sync.MaxPagesPerPass == 0 {
		c.Sync.MaxPagesPerPass = 10
	}
	if c.Image.MaxDimension == 0 {
		c.Image.MaxDimension = 1024
	}
	if c.Image.Quality == 0 {
		c.Image.Quality = 80
	}
	if c.Image.Folder == "" {
		c.Image.Folder = "facebook-feed"
	}
	if c.Image.FetchTimeout == 0 {
		c.Image.FetchTimeout = 20 * time.Second
	}
	if c.Image.MaxBytes == 0 {
		c.Image.MaxBytes = 20 << 20
	}
	if c.Blob.Type == "" {
		c.Blob.Type = "filesystem"
	}
	if c.Blob.Type == "filesystem" && c.Blob.Root == "" {
		c.Blob.Root = "./public"
	}
	if c.TokenStore.Type == "" {
		c.TokenStore.Type = "postgres"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 15 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Sync.Interval < 0 {
		return errors.New("sync.interval must not be negative")
	}
	if c.Sync.MaxItemsPerPass < 0 {
		return errors.New("sync.max_items_per_pass must be positive")
	}
	if c.Sync.MaxPagesPerPass < 0 {
		return errors.New("sync.max_pages_per_pass must be positive")
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be within 1..100, got %d", c.Image.Quality)
	}
	if c.Blob.Type == "s3" && c.Blob.S3Bucket == "" {
		return errors.New("s3 blob store requires s3_bucket to be set")
	}
	return nil
}
