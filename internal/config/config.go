package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dms.
type Config struct {
	BaseDir    string           `toml:"base_dir" validate:"required"`
	LogDir     string           `toml:"log_dir" validate:"required"`
	LogLevel   string           `toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Database   DatabaseConfig   `toml:"database"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sessions   SessionsConfig   `toml:"sessions"`
	Lifecycle  LifecycleConfig  `toml:"lifecycle"`
	Upload     UploadConfig     `toml:"upload"`
	Events     EventsConfig     `toml:"events"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"required,oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
}

// GatewayConfig represents configuration for the object-store gateway.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type GatewayConfig struct {
	Type string `toml:"type" validate:"required,oneof=memory filesystem s3"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty" validate:"required_if=Type filesystem"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" validate:"required_with=S3AccessKeyID"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
}

// EncryptionConfig configures at-rest encryption of filesystem gateway objects.
type EncryptionConfig struct {
	Type    string `toml:"type" validate:"omitempty,oneof=none age"`
	KeyPath string `toml:"key_path,omitempty" validate:"required_if=Type age"` // age identity file
}

// SessionsConfig represents configuration for the upload-session store.
type SessionsConfig struct {
	Type string   `toml:"type" validate:"required,oneof=memory badger"`
	Dir  string   `toml:"dir,omitempty" validate:"required_if=Type badger"` // only used for type=badger
	TTL  Duration `toml:"ttl" validate:"gt=0"`
}

// LifecycleConfig holds retention and background-job settings.
type LifecycleConfig struct {
	RetentionWindow  Duration `toml:"retention_window" validate:"gt=0"`
	PurgeInterval    Duration `toml:"purge_interval" validate:"gt=0"`
	PurgeBatchSize   int      `toml:"purge_batch_size" validate:"min=1"`
	TierPollInterval Duration `toml:"tier_poll_interval" validate:"gt=0"`
	ColdRestoreDays  int      `toml:"cold_restore_days" validate:"min=1"`
	BatchWorkers     int      `toml:"batch_workers" validate:"min=1,max=256"`
}

// UploadConfig holds upload planning settings.
type UploadConfig struct {
	MultipartThreshold int64    `toml:"multipart_threshold" validate:"min=1"`
	PartSize           int64    `toml:"part_size" validate:"min=5242880"` // S3 minimum part size
	PartURLExpiry      Duration `toml:"part_url_expiry" validate:"gt=0"`
	IgnorePatterns     []string `toml:"ignore_patterns,omitempty"` // skipped by directory uploads
}

// EventsConfig configures the in-process event queue.
type EventsConfig struct {
	QueueSize     int  `toml:"queue_size" validate:"min=1"`
	Notifications bool `toml:"notifications"` // record notifications for event recipients
}

// MetricsConfig configures the Prometheus endpoint served by the worker.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen" validate:"omitempty,hostname_port"`
}

// Duration is a time.Duration written as a string ("720h") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a new Config rooted at baseDir with local defaults:
// SQLite metadata, filesystem objects and a badger session store.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Gateway:  GatewayConfig{Type: "filesystem", Root: filepath.Join(baseDir, "objects")},
		Encryption: EncryptionConfig{
			Type:    "none",
			KeyPath: filepath.Join(baseDir, "keys", "dms.key"),
		},
		Sessions: SessionsConfig{
			Type: "badger",
			Dir:  filepath.Join(baseDir, "sessions"),
			TTL:  Duration{24 * time.Hour},
		},
		Lifecycle: LifecycleConfig{
			RetentionWindow:  Duration{30 * 24 * time.Hour},
			PurgeInterval:    Duration{time.Hour},
			PurgeBatchSize:   500,
			TierPollInterval: Duration{15 * time.Minute},
			ColdRestoreDays:  7,
			BatchWorkers:     8,
		},
		Upload: UploadConfig{
			MultipartThreshold: 100 << 20,
			PartSize:           8 << 20,
			PartURLExpiry:      Duration{15 * time.Minute},
			IgnorePatterns:     []string{".DS_Store", "Thumbs.db"},
		},
		Events:  EventsConfig{QueueSize: 256, Notifications: true},
		Metrics: MetricsConfig{Enabled: false, Listen: "127.0.0.1:9464"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
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

// ReadFromFile reads and validates a Config from the specified file path.
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
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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

// Init validates cfg and writes it as a new config file at path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
