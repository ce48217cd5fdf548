package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatehouse-cms/gatehouse/internal/server"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

const banner = `
  ____       _       _
 / ___| __ _| |_ ___| |__   ___  _   _ ___  ___
| |  _ / _' | __/ _ \ '_ \ / _ \| | | / __|/ _ \
| |_| | (_| | ||  __/ | | | (_) | |_| \__ \  __/
 \____|\__,_|\__\___|_| |_|\___/ \__,_|___/\___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API server",
		Long:  "Start the HTTP server that exposes the admin login, session, MFA and audit endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, insecure cookies)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, dev bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(dev)
	production := viper.GetBool("server.production") && !dev

	// 1. Credential store
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	logger.Info("store initialized", "driver", store.Driver())

	// 2. Role hierarchy
	hierarchy, seeded, err := loadHierarchy(ctx, store)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	logger.Info("role hierarchy loaded", "roles", len(hierarchy.Roles()), "seeded", seeded)

	// 3. Auth service
	opts := authOptions(logger)
	if opts.JWTSecret == "" {
		if production {
			return fmt.Errorf("auth.jwt_secret is required in production (set GATEHOUSE_AUTH_JWT_SECRET)")
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		opts.JWTSecret = secret
		logger.Warn("no auth.jwt_secret configured, using a random secret; sessions end on restart")
	}
	if url := viper.GetString("redis.url"); url != "" {
		revoker, closeRedis, err := newRedisRevoker(ctx, url)
		if err != nil {
			return err
		}
		defer closeRedis()
		opts.Revoker = revoker
		logger.Info("token revocation backed by redis")
	} else {
		logger.Info("token revocation kept in memory")
	}
	authSvc := service.NewAuthService(store, hierarchy, opts)

	// 4. First run (no admin exists)
	hasAdmin, err := store.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: gatehouse admin create --email you@example.com")
	}

	// 5. HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = viper.GetString("server.host")
	srvCfg.Port = viper.GetInt("server.port")
	if d := viper.GetDuration("server.shutdown_timeout"); d > 0 {
		srvCfg.ShutdownTimeout = d
	}
	srvCfg.CORSOrigins = viper.GetStringSlice("server.cors.origins")
	srvCfg.LoginRateLimit = viper.GetInt("server.login_rate_limit")
	srvCfg.SecureCookies = production
	srvCfg.Version = versionString()

	srv := server.New(srvCfg, authSvc, logger)

	fmt.Printf("→ Gatehouse %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Admin API:  http://%s:%d/api/admin\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
