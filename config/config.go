// Package config loads the service configuration from YAML with ${VAR} substitution.
//
// Every setting has a default, so a config file is optional:
//
//	cfg, err := config.Load("neo.yaml") // or config.Load("") for defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"neo-import-export/common"
	"neo-import-export/logger"
)

// Config is the root configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      logger.Config  `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"` // debug, release, test
}

// DatabaseConfig locates the sqlite job store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FeedsConfig locates the two source feeds
type FeedsConfig struct {
	NEOPath string `yaml:"neo_csv"`
	CADPath string `yaml:"cad_json"`
}

// StorageConfig locates export and upload directories
type StorageConfig struct {
	ExportsDir string `yaml:"exports_dir"`
	UploadsDir string `yaml:"uploads_dir"`
}

// AuthConfig enables bearer-token auth on the API when JWTSecret is set
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	APIKeyHash string        `yaml:"api_key_hash"` // bcrypt hash of the API key exchanged for tokens
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// Enabled reports whether the API requires bearer tokens
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", GinMode: "release"},
		Database: DatabaseConfig{Path: "data/neo.db"},
		Feeds:    FeedsConfig{NEOPath: "data/neos.csv", CADPath: "data/cad.json"},
		Storage:  StorageConfig{ExportsDir: common.ExportsDir, UploadsDir: common.UploadsDir},
		Log:      logger.Config{Level: "info", Encoding: "console"},
		Auth:     AuthConfig{TokenTTL: time.Hour},
	}
}

// Load reads the YAML file at filePath over the defaults. An empty path returns the defaults.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeIO, "failed to read config file")
	}

	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, common.WrapError(err, common.ErrorTypeConfig, "failed to parse YAML")
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	required := map[string]string{
		"server.port":         c.Server.Port,
		"database.path":       c.Database.Path,
		"storage.exports_dir": c.Storage.ExportsDir,
		"storage.uploads_dir": c.Storage.UploadsDir,
	}
	for field, value := range required {
		if verr := common.ValidateRequired(field, value); verr != nil {
			return common.NewError(common.ErrorTypeConfig, verr.Message).WithDetail("field", verr.Field)
		}
	}
	if c.Auth.Enabled() && c.Auth.TokenTTL <= 0 {
		return common.NewError(common.ErrorTypeConfig, "auth.token_ttl must be positive")
	}
	if verr := common.ValidateEnum("server.gin_mode", c.Server.GinMode, []string{"debug", "release", "test"}); verr != nil {
		return common.NewError(common.ErrorTypeConfig, verr.Message)
	}
	return nil
}

// Save writes the configuration as YAML
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return common.WrapError(err, common.ErrorTypeIO, "failed to write config file")
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
