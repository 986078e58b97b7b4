package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for capture.
type Config struct {
	DeviceName  string            `toml:"device_name"`
	AppVersion  string            `toml:"app_version"`
	DataDir     string            `toml:"data_dir"`
	LogDir      string            `toml:"log_dir"`
	Database    DatabaseConfig    `toml:"database"`
	Collector   CollectorConfig   `toml:"collector"`
	Geolocation GeolocationConfig `toml:"geolocation"`
	Backend     BackendConfig     `toml:"backend"`
	Publisher   PublisherConfig   `toml:"publisher"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Filesystem  FilesystemConfig  `toml:"filesystem"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CollectorConfig controls the capture pipeline.
type CollectorConfig struct {
	// Background runs pipelines as tracked background tasks that are
	// drained before the process exits.
	Background bool `toml:"background"`

	// Recorder is written into every signed message.
	Recorder string `toml:"recorder"`

	// ThumbnailSize is the longest thumbnail edge in pixels.
	ThumbnailSize int `toml:"thumbnail_size"`
}

// GeolocationConfig supplies the position reported by the location fact.
// Hosts without a positioning device use a fixed position.
type GeolocationConfig struct {
	Enabled   bool    `toml:"enabled"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
}

// BackendConfig points at the remote asset service.
type BackendConfig struct {
	BaseURL string        `toml:"base_url"`
	Token   string        `toml:"token"`
	Timeout time.Duration `toml:"timeout"`
}

// PublisherConfig represents configuration for a publish target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type PublisherConfig struct {
	Type string `toml:"type"` // "" (disabled), "memory", "filesystem" or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for share bundles.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// DefaultBackendTimeout bounds every backend request.
const DefaultBackendTimeout = 20 * time.Second

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceName, dataDir string) *Config {
	return &Config{
		DeviceName: deviceName,
		AppVersion: "0.15.0",
		DataDir:    dataDir,
		LogDir:     filepath.Join(dataDir, "log"),
		Database:   DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(dataDir, "db")},
		Collector: CollectorConfig{
			Background:    true,
			Recorder:      "capture-go",
			ThumbnailSize: 100,
		},
		Backend: BackendConfig{Timeout: DefaultBackendTimeout},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(dataDir, "keys", "capture.pub"),
			PrivateKeyPath: filepath.Join(dataDir, "keys", "capture.key"),
		},
		Filesystem: FilesystemConfig{Ignore: []string{".DS_Store", "Thumbs.db"}},
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DeviceName == "" {
		return fmt.Errorf("device_name is required")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}
	switch c.Publisher.Type {
	case "", "memory":
	case "filesystem":
		if c.Publisher.FSRoot == "" {
			return fmt.Errorf("fs_root required for filesystem publisher")
		}
	case "s3":
		if c.Publisher.S3Bucket == "" {
			return fmt.Errorf("s3_bucket required for s3 publisher")
		}
	default:
		return fmt.Errorf("unknown publisher type: %s", c.Publisher.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Missing durations fall
// back to their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is an error.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
