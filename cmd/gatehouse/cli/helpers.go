package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// GATEHOUSE_DATA_DIR env var, or ~/.gatehouse as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("GATEHOUSE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gatehouse")
}

// openStore opens the credential store selected by database.driver. With
// the sqlite driver and no DSN the store lives in the data directory.
func openStore() (*config.Store, error) {
	driver := viper.GetString("database.driver")
	dsn := viper.GetString("database.dsn")
	if (driver == "" || driver == "sqlite") && dsn == "" {
		return config.NewStore(resolveDataDir())
	}
	return config.Open(driver, dsn)
}

// loadRoles returns the configured role definitions: auth.roles_file when
// set, the built-in newsroom hierarchy otherwise.
func loadRoles() ([]model.Role, error) {
	if path := viper.GetString("auth.roles_file"); path != "" {
		return config.LoadRolesFile(path)
	}
	return rbac.DefaultRoles(), nil
}

// loadHierarchy seeds any missing configured roles and builds the hierarchy
// from what the store holds, so role ids match the admin rows.
func loadHierarchy(ctx context.Context, store *config.Store) (*rbac.Hierarchy, int, error) {
	roles, err := loadRoles()
	if err != nil {
		return nil, 0, err
	}
	if _, err := rbac.New(roles); err != nil {
		return nil, 0, fmt.Errorf("invalid role definitions: %w", err)
	}
	inserted, err := store.SeedRoles(ctx, roles)
	if err != nil {
		return nil, 0, err
	}
	stored, err := store.ListRoles(ctx)
	if err != nil {
		return nil, 0, err
	}
	h, err := rbac.New(stored)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid stored roles: %w", err)
	}
	return h, inserted, nil
}

// authOptions maps the auth.* keys onto service options.
func authOptions(logger *slog.Logger) service.Options {
	return service.Options{
		JWTSecret:        viper.GetString("auth.jwt_secret"),
		TokenTTL:         viper.GetDuration("auth.token_ttl"),
		BcryptCost:       viper.GetInt("auth.bcrypt_cost"),
		LockoutThreshold: viper.GetInt("auth.lockout_threshold"),
		LockoutDuration:  viper.GetDuration("auth.lockout_duration"),
		MFAIssuer:        viper.GetString("auth.mfa_issuer"),
		BackupCodeCount:  viper.GetInt("auth.backup_code_count"),
		Logger:           logger,
	}
}

// openAuthService opens the store and builds an AuthService for the
// operator commands. The caller closes the returned store.
func openAuthService(ctx context.Context) (*service.AuthService, *config.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	h, _, err := loadHierarchy(ctx, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger := newLogger(false)
	return service.NewAuthService(store, h, authOptions(logger)), store, nil
}

// newRedisRevoker connects to redis.url and checks it answers.
func newRedisRevoker(ctx context.Context, url string) (*service.RedisRevoker, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return service.NewRedisRevoker(client, ""), client.Close, nil
}

// newLogger builds the process logger from logging.level and
// logging.format. dev forces debug level.
func newLogger(dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("logging.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(viper.GetString("logging.format")) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// randomSecret returns a hex-encoded 32-byte secret for development runs
// that have no auth.jwt_secret.
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
