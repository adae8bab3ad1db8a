package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatlog.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatlog")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// LogDir returns the default base directory of the primary XML store.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LegacyLogDir returns the base directory Empathy wrote its logs to.
func LegacyLogDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "Empathy", "logs")
}

// PurpleLogDir returns the base directory of libpurple's logger.
func PurpleLogDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".purple", "logs")
}

// CachePath returns the SQLite cache database path.
func CachePath() string {
	return filepath.Join(BaseDir(), "cache.db")
}

// SpoolDir returns the directory external collaborators drop events into.
func SpoolDir() string {
	return filepath.Join(BaseDir(), "spool")
}

// LockPath returns the daemon lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// DaemonLogPath returns the daemon's own log file path.
func DaemonLogPath() string {
	return filepath.Join(BaseDir(), "chatlogd.log")
}

// EnsureDirs creates the base directory tree with private permissions.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
