package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kjk/common/atomicfile"
	"github.com/phuslu/log"
	"github.com/ssargent/akv/pkg/logging"
	"github.com/ssargent/akv/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config represents the akv configuration
type Config struct {
	DataFile string   `yaml:"data_file"`
	Port     int      `yaml:"port"`
	Bind     string   `yaml:"bind"`
	Storage  Storage  `yaml:"storage"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
}

// Storage controls how the engine opens and writes the log
type Storage struct {
	SyncWrites     bool   `yaml:"sync_writes"`
	RepairTornTail bool   `yaml:"repair_torn_tail"`
	LoadOnOpen     bool   `yaml:"load_on_open"`
	MaxFieldSize   uint64 `yaml:"max_field_size"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataFile: "./data/akv.log",
		Port:     8080,
		Bind:     "127.0.0.1",
		Storage: Storage{
			LoadOnOpen: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// LoadConfig loads configuration from the specified path. Fields missing
// from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig writes the configuration atomically with owner-only permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	f, err := atomicfile.New(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.RemoveIfNotClosed()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a fresh configuration with a generated API key
func BootstrapConfig(configPath string, dataFile string) (*Config, error) {
	config := DefaultConfig()
	if dataFile != "" {
		config.DataFile = dataFile
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./akv.yaml"
	}

	// ~/.config/akv/config.yaml
	return filepath.Join(homeDir, ".config", "akv", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// Validate checks that the configuration can be used to open a store
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return errors.New("data_file must be set")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if _, err := logging.New(c.Logging.Level, c.Logging.Format, nil); err != nil {
		return err
	}
	return nil
}

// Logger builds the logger described by the logging section
func (c *Config) Logger() (*log.Logger, error) {
	return logging.New(c.Logging.Level, c.Logging.Format, os.Stderr)
}

// StoreConfig maps the storage section onto the engine configuration
func (c *Config) StoreConfig(logger *log.Logger) store.KVStoreConfig {
	return store.KVStoreConfig{
		SyncWrites:     c.Storage.SyncWrites,
		MaxFieldSize:   c.Storage.MaxFieldSize,
		RepairTornTail: c.Storage.RepairTornTail,
		Logger:         logger,
	}
}
