package config

import (
	"log/slog"
	"net/url"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Manager holds the application configuration and provides thread-safe access to it.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	path   string
}

// NewManager creates a new Manager. path is where the config was read from
// and may be empty for in-process configs.
func NewManager(config *Config, path string) *Manager {
	return &Manager{config: config, path: path}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the file the configuration was loaded from.
func (m *Manager) Path() string {
	return m.path
}

// Update updates the configuration.
func (m *Manager) Update(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := m.config
	m.config = config

	if oldConfig != nil {
		slog.Debug("Configuration updated",
			"database_changed", oldConfig.Database != config.Database,
			"provider_enabled_changed", oldConfig.Provider.Enabled != config.Provider.Enabled,
			"backfill_changed", oldConfig.Backfill != config.Backfill,
			"logger_level_changed", oldConfig.Logger.Level != config.Logger.Level,
		)
		if oldConfig.Database != config.Database || oldConfig.Server != config.Server {
			slog.Warn("Server and database changes take effect after a restart")
		}
	}
}

// Reload re-reads the config file. An invalid file leaves the current
// configuration in place.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	cfg, err := readFile(m.path)
	if err != nil {
		slog.Error("Ignoring invalid configuration", "path", m.path, "error", err)
		return err
	}
	m.Update(cfg)
	slog.Info("Configuration reloaded", "path", m.path)
	return nil
}

// Save writes the current configuration to the specified file path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		slog.Error("failed to create config file", "path", path, "error", err)
		return err
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	if err := encoder.Encode(m.config); err != nil {
		slog.Error("failed to encode config", "path", path, "error", err)
		return err
	}

	slog.Info("Configuration saved successfully", "path", path)
	return nil
}

// redactedCfg gets a redacted copy of the Config
func (m *Manager) redactedCfg() Config {
	cfgCpy := *m.config
	if cfgCpy.Provider.ClientSecret != "" {
		cfgCpy.Provider.ClientSecret = "<redacted>"
	}
	if u, err := url.Parse(cfgCpy.Database.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "redacted")
			cfgCpy.Database.DSN = u.String()
		}
	}
	return cfgCpy
}

// GetJSON returns the current configuration as a JSON string.
func (m *Manager) GetJSON() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jsonBytes, err := json.Marshal(m.redactedCfg())
	if err != nil {
		slog.Error("failed to marshal config to JSON", "error", err)
		return err.Error()
	}
	return string(jsonBytes)
}

func (m *Manager) GetYAML() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	yamlBytes, err := yaml.Marshal(m.redactedCfg())
	if err != nil {
		slog.Error("failed to marshal config to YAML", "error", err)
		return err.Error()
	}
	return string(yamlBytes)
}
