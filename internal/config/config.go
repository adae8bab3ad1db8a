package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmellis/chatlog/internal/paths"
)

// Duration is a time.Duration that reads from TOML as a string like "1h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the global ~/.chatlog/config.toml.
type Config struct {
	// Enabled gates all writes. When false the manager refuses AddEvent
	// without touching any store; reads stay available.
	Enabled bool `toml:"enabled"`

	Log    LogConfig    `toml:"log"`
	Cache  CacheConfig  `toml:"cache"`
	Spool  SpoolConfig  `toml:"spool"`
	Pidgin PidginConfig `toml:"pidgin"`
}

// LogConfig locates the XML stores on disk.
type LogConfig struct {
	Dir string `toml:"dir"`
	// LegacyDir is the base directory of pre-existing Empathy logs,
	// read-only. Empty disables the legacy store.
	LegacyDir string `toml:"legacy_dir"`
}

// CacheConfig configures the SQLite message cache.
type CacheConfig struct {
	Path          string   `toml:"path"`
	PurgeInterval Duration `toml:"purge_interval"`
	Retention     Duration `toml:"retention"`
}

// SpoolConfig locates the event spool directory.
type SpoolConfig struct {
	Dir string `toml:"dir"`
}

// PidginConfig configures the read-only libpurple store. Without at
// least one account binding the store is not registered.
type PidginConfig struct {
	Dir      string          `toml:"dir"`
	Accounts []PidginAccount `toml:"accounts"`
}

// PidginAccount binds a logged account name to the protocol/username
// directory pair libpurple files its logs under.
type PidginAccount struct {
	Account  string `toml:"account"`
	Protocol string `toml:"protocol"`
	Username string `toml:"username"`
	Server   string `toml:"server"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Enabled: true,
		Log: LogConfig{
			Dir:       paths.LogDir(),
			LegacyDir: paths.LegacyLogDir(),
		},
		Cache: CacheConfig{
			Path:          paths.CachePath(),
			PurgeInterval: Duration{time.Hour},
			Retention:     Duration{time.Hour},
		},
		Spool: SpoolConfig{
			Dir: paths.SpoolDir(),
		},
		Pidgin: PidginConfig{
			Dir: paths.PurpleLogDir(),
		},
	}
}

// Load reads config from the given path. Returns an error if the file
// is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
