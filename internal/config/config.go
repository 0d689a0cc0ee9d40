package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"homefs/internal/artifacts"
)

// EnvConfigDir overrides the config directory.
const EnvConfigDir = "HOMEFS_CONFIG_DIR"

// EnvDaemonLog overrides the daemon log file path.
const EnvDaemonLog = "HOMEFS_DAEMON_LOG"

// getConfigDir returns the config directory path.
// Uses HOMEFS_CONFIG_DIR env var if set, otherwise defaults to ~/.homefs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".homefs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// MetaFilePath returns the path to the favorites/shares/trash database
func MetaFilePath() string {
	return filepath.Join(getConfigDir(), "meta.db")
}

// PidPath returns the daemon PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), "daemon.pid")
}

// SocketPath returns the daemon IPC socket path
func SocketPath() string {
	return filepath.Join(getConfigDir(), "daemon.sock")
}

// LockPath returns the daemon single-instance lock path
func LockPath() string {
	return filepath.Join(getConfigDir(), "daemon.lock")
}

// LogPath returns the daemon log file path.
// Uses HOMEFS_DAEMON_LOG env var if set.
func LogPath() string {
	if envPath := os.Getenv(EnvDaemonLog); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "daemon.log")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with a default settings file.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings holds homefs settings from settings.yaml.
type Settings struct {
	DataDirectory       string   `yaml:"data_directory"`        // default: <config dir>/data
	LogLevel            string   `yaml:"log_level"`             // trace, debug, info, warn, off (default: off)
	MaxDirectoryListing int      `yaml:"max_directory_listing"` // default: 10000
	StatConcurrency     int      `yaml:"stat_concurrency"`      // default: 10
	DeleteConcurrency   int      `yaml:"delete_concurrency"`    // default: 4
	BusyTimeout         int      `yaml:"busy_timeout"`          // SQLite busy_timeout (ms), 0 = use default
	DefaultFavorites    []string `yaml:"default_favorites"`
	ProtectedPaths      []string `yaml:"protected_paths"`
	UnshareablePaths    []string `yaml:"unshareable_paths"`
	HiddenFiles         []string `yaml:"hidden_files"`
	ShareConfigPath     string   `yaml:"share_config_path"` // default: <config dir>/smb-shares.conf
	ShareUsername       string   `yaml:"share_username"`
	ShareReloadCommand  []string `yaml:"share_reload_command"` // run after the share config changes
	ExtractCommand      string   `yaml:"extract_command"`      // default: unar
	MaintenanceInterval int      `yaml:"maintenance_interval"` // daemon maintenance period (s), default: 300
	TrashRecordGrace    int      `yaml:"trash_record_grace"`   // age (s) before an entryless trash record is purged, default: 60, <0 = none
}

// MaintenancePeriod returns MaintenanceInterval as a duration.
func (s *Settings) MaintenancePeriod() time.Duration {
	return time.Duration(s.MaintenanceInterval) * time.Second
}

// defaultSettings parses default settings from the embedded artifact.
func defaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// DefaultSettings returns the embedded defaults with paths resolved.
func DefaultSettings() *Settings {
	settings := defaultSettings()
	settings.ApplyDefaults()
	return &settings
}

// ApplyDefaults fills zero-value fields from the embedded defaults.
// Lists left unset (nil) take the defaults; an explicit empty list is kept.
func (s *Settings) ApplyDefaults() {
	defaults := defaultSettings()
	if s.DataDirectory == "" {
		s.DataDirectory = filepath.Join(getConfigDir(), "data")
	}
	if s.MaxDirectoryListing <= 0 {
		s.MaxDirectoryListing = defaults.MaxDirectoryListing
	}
	if s.StatConcurrency <= 0 {
		s.StatConcurrency = defaults.StatConcurrency
	}
	if s.DeleteConcurrency <= 0 {
		s.DeleteConcurrency = defaults.DeleteConcurrency
	}
	if s.DefaultFavorites == nil {
		s.DefaultFavorites = defaults.DefaultFavorites
	}
	if s.ProtectedPaths == nil {
		s.ProtectedPaths = defaults.ProtectedPaths
	}
	if s.UnshareablePaths == nil {
		s.UnshareablePaths = defaults.UnshareablePaths
	}
	if s.HiddenFiles == nil {
		s.HiddenFiles = defaults.HiddenFiles
	}
	if s.ShareConfigPath == "" {
		s.ShareConfigPath = filepath.Join(getConfigDir(), "smb-shares.conf")
	}
	if s.ExtractCommand == "" {
		s.ExtractCommand = defaults.ExtractCommand
	}
	if s.MaintenanceInterval <= 0 {
		s.MaintenanceInterval = defaults.MaintenanceInterval
	}
	if s.TrashRecordGrace == 0 {
		s.TrashRecordGrace = defaults.TrashRecordGrace
	}
}

// LoggingEnabled returns whether logging is enabled (any level other than "off" or empty).
func (s *Settings) LoggingEnabled() bool {
	level := strings.ToLower(s.LogLevel)
	return level != "" && level != "off" && level != "none"
}

// LoadSettings loads settings from <config dir>/settings.yaml.
// Always reads from file to get latest config. Falls back to embedded
// defaults if the file doesn't exist.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SettingsPath(), err)
	}
	settings.ApplyDefaults()
	return &settings, nil
}

// SaveSettings saves settings to <config dir>/settings.yaml
func SaveSettings(settings *Settings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# homefs settings\n# See: homefs settings --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}
