package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceName: "pixel-test",
		AppVersion: "0.15.0",
		DataDir:    "/home/user/.local/share/capture",
		LogDir:     "/home/user/.local/share/capture/log",
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/capture/db"},
		Collector:  CollectorConfig{Background: true, Recorder: "capture-go", ThumbnailSize: 64},
		Geolocation: GeolocationConfig{
			Enabled:   true,
			Latitude:  25.0330,
			Longitude: 121.5654,
		},
		Backend: BackendConfig{BaseURL: "https://api.example.com", Token: "secret", Timeout: 5 * time.Second},
		Publisher: PublisherConfig{
			Type:     "s3",
			S3Bucket: "proofs",
			S3Prefix: "device/",
			S3Region: "us-east-1",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/keys/capture.pub",
			PrivateKeyPath: "/keys/capture.key",
		},
		Filesystem: FilesystemConfig{Ignore: []string{"*.log", ".git"}},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceName != original.DeviceName {
		t.Errorf("DeviceName = %q, want %q", got.DeviceName, original.DeviceName)
	}
	if got.DataDir != original.DataDir {
		t.Errorf("DataDir = %q, want %q", got.DataDir, original.DataDir)
	}
	if got.Collector != original.Collector {
		t.Errorf("Collector = %+v, want %+v", got.Collector, original.Collector)
	}
	if got.Geolocation != original.Geolocation {
		t.Errorf("Geolocation = %+v, want %+v", got.Geolocation, original.Geolocation)
	}
	if got.Backend != original.Backend {
		t.Errorf("Backend = %+v, want %+v", got.Backend, original.Backend)
	}
	if got.Publisher != original.Publisher {
		t.Errorf("Publisher = %+v, want %+v", got.Publisher, original.Publisher)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestManager_Read_DefaultTimeout(t *testing.T) {
	m := &Manager{}
	got, err := m.Read(strings.NewReader("device_name = \"d\"\ndata_dir = \"/data\"\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Backend.Timeout != DefaultBackendTimeout {
		t.Errorf("Backend.Timeout = %v, want %v", got.Backend.Timeout, DefaultBackendTimeout)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "/data/capture")

	if cfg.DeviceName != "device-1" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "device-1")
	}
	if cfg.LogDir != "/data/capture/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/capture/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/capture/keys/capture.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Collector.ThumbnailSize != 100 {
		t.Errorf("Collector.ThumbnailSize = %d, want 100", cfg.Collector.ThumbnailSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: true},
		{name: "missing device name", mutate: func(c *Config) { c.DeviceName = "" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Publisher.Type = "s3" }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) { c.Publisher = PublisherConfig{Type: "s3", S3Bucket: "b"} }},
		{name: "filesystem without root", mutate: func(c *Config) { c.Publisher.Type = "filesystem" }, wantErr: true},
		{name: "filesystem with root", mutate: func(c *Config) { c.Publisher = PublisherConfig{Type: "filesystem", FSRoot: "/tmp/out"} }},
		{name: "unknown publisher", mutate: func(c *Config) { c.Publisher.Type = "ftp" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("d", "/data")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "capture.toml")

		if err := Init(path, NewConfig("d1", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "capture.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "capture.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceName != "read-test" {
			t.Errorf("DeviceName = %q, want %q", got.DeviceName, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/capture.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
