package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Probe    ProbeConfig    `yaml:"probe"`
	Progress ProgressConfig `yaml:"progress"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"10m"`
	// RequestTimeout bounds a single handler. Download requests block for
	// the whole job, so it must exceed the download deadline.
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"9m"`
	// APIKey protects /media and /stats when set.
	APIKey string `yaml:"api_key" envconfig:"SERVER_API_KEY"`
}

// StorageConfig holds download output configuration.
type StorageConfig struct {
	BasePath     string `yaml:"base_path" envconfig:"STORAGE_PATH" default:"/data/downloads"`
	RecentDir    string `yaml:"recent_dir" envconfig:"STORAGE_RECENT_DIR" default:"recent_downloads"`
	PublicPrefix string `yaml:"public_prefix" envconfig:"STORAGE_PUBLIC_PREFIX" default:"/downloads/inno"`
	// BucketURL is the gocloud blob URL files are served from. Empty means
	// a file:// bucket on the recent downloads directory.
	BucketURL string `yaml:"bucket_url" envconfig:"STORAGE_BUCKET_URL"`
}

// RecentPath returns the directory new downloads are written to.
func (c *StorageConfig) RecentPath() string {
	return filepath.Join(c.BasePath, c.RecentDir)
}

// DownloadConfig holds resume controller and yt-dlp configuration.
type DownloadConfig struct {
	Deadline            time.Duration `yaml:"deadline" envconfig:"DOWNLOAD_DEADLINE" default:"420s"`
	NetworkWaitWindow   time.Duration `yaml:"network_wait_window" envconfig:"DOWNLOAD_NETWORK_WAIT_WINDOW" default:"30s"`
	NetworkPollInterval time.Duration `yaml:"network_poll_interval" envconfig:"DOWNLOAD_NETWORK_POLL_INTERVAL" default:"5s"`
	DNSRetryDelay       time.Duration `yaml:"dns_retry_delay" envconfig:"DOWNLOAD_DNS_RETRY_DELAY" default:"10s"`
	Retries             int           `yaml:"retries" envconfig:"DOWNLOAD_RETRIES" default:"10"`
	SocketTimeout       time.Duration `yaml:"socket_timeout" envconfig:"DOWNLOAD_SOCKET_TIMEOUT" default:"15s"`
	VideoFormat         string        `yaml:"video_format" envconfig:"DOWNLOAD_VIDEO_FORMAT" default:"bestvideo+bestaudio/best"`
	MergeFormat         string        `yaml:"merge_format" envconfig:"DOWNLOAD_MERGE_FORMAT" default:"mp4"`
	AudioFormat         string        `yaml:"audio_format" envconfig:"DOWNLOAD_AUDIO_FORMAT" default:"bestaudio/best"`
	AudioCodec          string        `yaml:"audio_codec" envconfig:"DOWNLOAD_AUDIO_CODEC" default:"mp3"`
	// Executable overrides the yt-dlp binary path. Empty resolves from PATH.
	Executable string `yaml:"executable" envconfig:"DOWNLOAD_YTDLP_PATH"`
}

// ProbeConfig holds connectivity probe configuration.
type ProbeConfig struct {
	URL     string        `yaml:"url" envconfig:"PROBE_URL" default:"https://www.google.com"`
	Timeout time.Duration `yaml:"timeout" envconfig:"PROBE_TIMEOUT" default:"5s"`
}

// ProgressConfig holds progress store eviction configuration.
type ProgressConfig struct {
	TTL           time.Duration `yaml:"ttl" envconfig:"PROGRESS_TTL" default:"1h"`
	SweepSchedule string        `yaml:"sweep_schedule" envconfig:"PROGRESS_SWEEP_SCHEDULE" default:"@every 1m"`
}

// CatalogConfig holds completed-media catalog configuration.
type CatalogConfig struct {
	Driver     string `yaml:"driver" envconfig:"CATALOG_DRIVER" default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" envconfig:"CATALOG_SQLITE_PATH" default:"/data/catalog.db"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count     int `yaml:"count" envconfig:"WORKER_COUNT" default:"4"`
	QueueSize int `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE" default:"64"`
}

// Load reads configuration from an optional .env file, a YAML file and
// environment variables. Precedence is environment, then file, then the
// defaults in struct tags.
func Load(configPath, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	// Defaults plus whatever the environment sets.
	fromEnv := Config{}
	if err := envconfig.Process("", &fromEnv); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg := fromEnv

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		// Variables that are actually set win over the file
		overlayEnv(reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(&fromEnv).Elem())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// overlayEnv copies into dst every field of src whose envconfig variable
// is present in the environment.
func overlayEnv(dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("envconfig")
		if key == "" {
			if field.Type.Kind() == reflect.Struct {
				overlayEnv(dst.Field(i), src.Field(i))
			}
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// loadEnvFile loads variables from envFile without overriding the real
// environment. A missing default ".env" is not an error.
func loadEnvFile(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.RecentDir == "" {
		return fmt.Errorf("STORAGE_RECENT_DIR is required")
	}
	if c.Probe.URL == "" {
		return fmt.Errorf("PROBE_URL is required")
	}
	if c.Probe.Timeout <= 0 || c.Probe.Timeout > 5*time.Second {
		return fmt.Errorf("PROBE_TIMEOUT must be between 0 and 5s")
	}
	if c.Download.Deadline <= 0 {
		return fmt.Errorf("DOWNLOAD_DEADLINE must be positive")
	}
	if c.Download.NetworkPollInterval <= 0 || c.Download.NetworkWaitWindow < c.Download.NetworkPollInterval {
		return fmt.Errorf("DOWNLOAD_NETWORK_WAIT_WINDOW must be at least DOWNLOAD_NETWORK_POLL_INTERVAL")
	}
	if c.Download.AudioCodec == "" {
		return fmt.Errorf("DOWNLOAD_AUDIO_CODEC is required")
	}
	if c.Server.RequestTimeout <= c.Download.Deadline {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT must exceed DOWNLOAD_DEADLINE")
	}
	if c.Server.WriteTimeout != 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must exceed SERVER_REQUEST_TIMEOUT")
	}
	switch c.Catalog.Driver {
	case "sqlite":
		if c.Catalog.SQLitePath == "" {
			return fmt.Errorf("CATALOG_SQLITE_PATH is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown CATALOG_DRIVER %q", c.Catalog.Driver)
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
