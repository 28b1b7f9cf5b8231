package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for custody.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	LogLevel string         `toml:"log_level"` // debug, info, warn or error
	Ledger   LedgerConfig   `toml:"ledger"`
	Content  ContentConfig  `toml:"content"`
	Identity IdentityConfig `toml:"identity"`
	Client   ClientConfig   `toml:"client"`
	Grants   GrantsConfig   `toml:"grants"`
	Gateway  GatewayConfig  `toml:"gateway"`
}

// LedgerConfig selects the ledger backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LedgerConfig struct {
	Type string `toml:"type"` // "memory", "sqlite" or "remote"

	// Writer is the only address allowed to write (memory and sqlite).
	// Empty accepts any correctly signed envelope.
	Writer string `toml:"writer,omitempty"`

	// DataDir holds ledger.db (only used when Type == "sqlite").
	DataDir string `toml:"data_dir,omitempty"`

	// URL of a ledger gateway (only used when Type == "remote").
	URL string `toml:"url,omitempty"`
}

// ContentConfig selects where document content is stored.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ContentConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint overrides the AWS endpoint for S3-compatible services.
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials. Empty uses the default AWS credential chain.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// IdentityConfig locates the signing key.
type IdentityConfig struct {
	KeyPath   string `toml:"key_path"`
	Encrypted bool   `toml:"encrypted"` // key file is age passphrase-encrypted
}

// ClientConfig tunes ledger confirmation and read-after-write.
type ClientConfig struct {
	RequestTimeout    Duration `toml:"request_timeout"`
	VisibilityTimeout Duration `toml:"visibility_timeout"`
	PollBase          Duration `toml:"poll_base"`
	PollMax           Duration `toml:"poll_max"`
}

// GrantsConfig controls the permission resolver's grant cache.
type GrantsConfig struct {
	CacheTTL Duration `toml:"cache_ttl"`
}

// GatewayConfig configures `custody ledger serve`.
type GatewayConfig struct {
	Listen string `toml:"listen"`
}

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config rooted at baseDir with a sqlite ledger,
// filesystem content and default timeouts.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Ledger: LedgerConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "ledger"),
		},
		Content: ContentConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "content"),
		},
		Identity: IdentityConfig{
			KeyPath: filepath.Join(baseDir, "keys", "custody.key"),
		},
		Client: ClientConfig{
			RequestTimeout:    Duration{30 * time.Second},
			VisibilityTimeout: Duration{5 * time.Second},
			PollBase:          Duration{50 * time.Millisecond},
			PollMax:           Duration{time.Second},
		},
		Grants:  GrantsConfig{CacheTTL: Duration{5 * time.Minute}},
		Gateway: GatewayConfig{Listen: "127.0.0.1:8645"},
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

// Init writes cfg to a new config file at path. An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
