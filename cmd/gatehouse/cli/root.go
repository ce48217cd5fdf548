package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatehouse-cms/gatehouse/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and openapi
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Admin identity and access control for the magazine back office",
		Long: `Gatehouse authenticates back-office staff and decides what they may reach.

It verifies credentials and issues short-lived session tokens, locks accounts
after repeated failures, supports TOTP multi-factor authentication with backup
codes, enforces a ten-tier role hierarchy and keeps an append-only audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gatehouse.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.gatehouse)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newRoleCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gatehouse")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.gatehouse")
	}

	setDefaults(config.DefaultFileConfig())

	viper.SetEnvPrefix("GATEHOUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults registers the file defaults with viper so env overrides work
// for keys that appear in no config file.
func setDefaults(d *config.FileConfig) {
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	viper.SetDefault("server.login_rate_limit", d.Server.LoginRateLimit)
	viper.SetDefault("server.production", d.Server.Production)
	viper.SetDefault("server.cors.origins", d.Server.CORS.Origins)

	viper.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	viper.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	viper.SetDefault("auth.lockout_threshold", d.Auth.LockoutThreshold)
	viper.SetDefault("auth.lockout_duration", d.Auth.LockoutDuration)
	viper.SetDefault("auth.mfa_issuer", d.Auth.MFAIssuer)
	viper.SetDefault("auth.backup_code_count", d.Auth.BackupCodeCount)

	viper.SetDefault("database.driver", d.Database.Driver)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
}
