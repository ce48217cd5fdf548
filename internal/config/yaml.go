package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-cms/gatehouse/internal/model"
)

// FileConfig represents the top-level gatehouse configuration file. Keys
// mirror the viper keys used by the CLI (server.port, auth.jwt_secret, ...).
type FileConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	LoginRateLimit  int        `yaml:"login_rate_limit"`
	Production      bool       `yaml:"production"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls credentials, sessions, lockout and MFA.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenTTL         string `yaml:"token_ttl"`
	BcryptCost       int    `yaml:"bcrypt_cost"`
	LockoutThreshold int    `yaml:"lockout_threshold"`
	LockoutDuration  string `yaml:"lockout_duration"`
	MFAIssuer        string `yaml:"mfa_issuer"`
	BackupCodeCount  int    `yaml:"backup_code_count"`
	RolesFile        string `yaml:"roles_file"`
}

// DatabaseConfig selects the credential store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared token denylist. Empty URL keeps revocations
// in process memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadFileConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultFileConfig returns a FileConfig pre-filled with sensible defaults.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			LoginRateLimit:  20,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Auth: AuthConfig{
			TokenTTL:         "15m",
			BcryptCost:       12,
			LockoutThreshold: 5,
			LockoutDuration:  "15m",
			MFAIssuer:        "Gatehouse CMS",
			BackupCodeCount:  10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultFileConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// rolesFile is the on-disk shape of auth.roles_file.
type rolesFile struct {
	Roles []model.Role `yaml:"roles"`
}

// LoadRolesFile reads role definitions from a YAML file:
//
//	roles:
//	  - name: Master Admin
//	    rank: 1
//	    includes: [Webmaster]
//	    permissions: ["*"]
func LoadRolesFile(path string) ([]model.Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	var f rolesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles file: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("roles file %s defines no roles", path)
	}
	for i, r := range f.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("roles file %s: role #%d has no name", path, i+1)
		}
	}
	return f.Roles, nil
}
