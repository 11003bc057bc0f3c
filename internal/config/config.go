package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/tdi-genomics/tdisql/internal/database"
	"github.com/tdi-genomics/tdisql/internal/domain"
)

// Manager loads the tdisql configuration using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. With an empty configFile the
// usual locations are searched and a missing file is not an error.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{
		v:          viper.New(),
		configFile: configFile,
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v

	if m.configFile != "" {
		if _, err := os.Stat(m.configFile); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tdisql/")
	}

	// TDISQL_DATABASE_HOST overrides database.host
	v.SetEnvPrefix("TDISQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.debug", false)

	// Database defaults
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "TDI")
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "0s")
	v.SetDefault("database.connect_timeout", "10s")

	// Loader defaults
	v.SetDefault("loader.delimiter", "\t")
	v.SetDefault("loader.mode", "per_row")
	v.SetDefault("loader.lookup_cache_size", 4096)
	v.SetDefault("loader.experiment_id", 1)
	v.SetDefault("loader.driver_kind", "gene")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetLoaderConfig returns bulk-load configuration
func (m *Manager) GetLoaderConfig() *domain.LoaderConfig {
	return &m.config.Loader
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// ConfigFileUsed returns the path of the config file read, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate database configuration
	dialect, err := database.ParseDialect(config.Database.Driver)
	if err != nil {
		return err
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if dialect != database.SQLite {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}
	if config.Database.MaxOpenConns < 0 {
		return fmt.Errorf("invalid max_open_conns: %d", config.Database.MaxOpenConns)
	}

	// Validate loader configuration
	if config.Loader.Delimiter == "" {
		return fmt.Errorf("loader delimiter is required")
	}
	switch config.Loader.Mode {
	case "per_row", "atomic":
	default:
		return fmt.Errorf("invalid loader mode: %s", config.Loader.Mode)
	}
	if _, err := domain.ParseDriverKind(config.Loader.DriverKind); err != nil {
		return err
	}
	if config.Loader.ExperimentID <= 0 {
		return fmt.Errorf("invalid experiment id: %d", config.Loader.ExperimentID)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
