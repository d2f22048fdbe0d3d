// Package settings manages the gateway agent's launch settings file.
// The connector config document the controller owns is a separate
// file; this one only configures the agent process itself.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsDir is the default directory for agent files when no
// override is configured.
const DefaultSettingsDir = "/etc/edgehub"

// Settings holds agent launch options
type Settings struct {
	// LogLevel is the logrus level name (default: info)
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat selects text or json output (default: text)
	LogFormat string `yaml:"log_format,omitempty"`

	// ConfigFile is the gateway connector config document path
	ConfigFile string `yaml:"config_file,omitempty"`

	// ModuleBasePath resolves relative connector-type module paths
	ModuleBasePath string `yaml:"module_base_path,omitempty"`

	// HealthAddr is the health endpoint listen address (empty disables it)
	HealthAddr string `yaml:"health_addr,omitempty"`

	// AuditLogPath overrides the default audit log path
	AuditLogPath string `yaml:"audit_log_path,omitempty"`

	// AuditMaxSizeMB is the max audit log size in MB before rotation (default: 10)
	AuditMaxSizeMB int `yaml:"audit_max_size_mb,omitempty"`

	// AuditMaxBackups is the max number of rotated audit log files (default: 10)
	AuditMaxBackups int `yaml:"audit_max_backups,omitempty"`
}

const (
	// DefaultAuditMaxSizeMB is the default maximum audit log size in megabytes.
	DefaultAuditMaxSizeMB = 10

	// DefaultAuditMaxBackups is the default maximum number of rotated audit log files.
	DefaultAuditMaxBackups = 10
)

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(DefaultSettingsDir, "edgehub.yaml")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// GetLogLevel returns the log level with a fallback default
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return "info"
}

// GetConfigFile returns the connector config document path with a
// fallback default
func (s *Settings) GetConfigFile() string {
	if s.ConfigFile != "" {
		return s.ConfigFile
	}
	return filepath.Join(DefaultSettingsDir, "connectors.json")
}

// GetAuditLogPath returns the audit log path with a fallback default
func (s *Settings) GetAuditLogPath() string {
	if s.AuditLogPath != "" {
		return s.AuditLogPath
	}
	return "/var/log/edgehub/audit.log"
}

// GetAuditMaxSizeMB returns the audit rotation size with a fallback default
func (s *Settings) GetAuditMaxSizeMB() int {
	if s.AuditMaxSizeMB > 0 {
		return s.AuditMaxSizeMB
	}
	return DefaultAuditMaxSizeMB
}

// GetAuditMaxBackups returns the audit backup count with a fallback default
func (s *Settings) GetAuditMaxBackups() int {
	if s.AuditMaxBackups > 0 {
		return s.AuditMaxBackups
	}
	return DefaultAuditMaxBackups
}
