package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/saftrack/ippt-backend/internal/auth"
	"github.com/saftrack/ippt-backend/internal/conducts"
	"github.com/saftrack/ippt-backend/internal/config"
	"github.com/saftrack/ippt-backend/internal/database"
	"github.com/saftrack/ippt-backend/internal/directory"
	"github.com/saftrack/ippt-backend/internal/logging"
	"github.com/saftrack/ippt-backend/internal/roster"
	"github.com/saftrack/ippt-backend/internal/scoring"
	"github.com/saftrack/ippt-backend/internal/server"
	"github.com/saftrack/ippt-backend/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ippt-api",
		Short: "IPPT conduct tracking backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed directory members and scoring tables from JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			membersPath, _ := cmd.Flags().GetString("members")
			tablesPath, _ := cmd.Flags().GetString("tables")
			return runSeed(cmd.Context(), membersPath, tablesPath)
		},
	}
	seedCmd.Flags().String("members", "", "Path to a JSON array of directory members")
	seedCmd.Flags().String("tables", "", "Path to a JSON array of scoring tables")
	rootCmd.AddCommand(seedCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("sso-jwks-url", defaults.GetString("sso.jwks_url"), "Unit SSO JWKS URL")
	cmd.PersistentFlags().String("sso-issuers", defaults.GetString("sso.issuers"), "Comma-separated allowed SSO issuers")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Backend token TTL")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma-separated CORS origins")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sso.jwks_url", "sso-jwks-url")
	bindFlag(cmd, "sso.issuers", "sso-issuers")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})

	ssoVerifier, err := auth.NewSSOVerifier(auth.SSOVerifierConfig{
		Audience:       appConfig.TokenAudience,
		JWKSURL:        appConfig.SSOJWKSURL,
		AllowedIssuers: appConfig.SSOIssuers,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	identityService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	idProvider := roster.NewUUIDProvider()

	directoryService, err := directory.NewService(directory.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	conductsService, err := conducts.NewService(conducts.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tableStore, err := scoring.NewStore(db)
	if err != nil {
		return err
	}
	tables := scoring.NewCachingProvider(tableStore)

	engine, err := scoring.NewEngine(tables, logger)
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	rosterManager, err := roster.NewManager(roster.ManagerConfig{
		Engine:      engine,
		Broadcaster: dispatcher,
		IDProvider:  idProvider,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SSOVerifier:    ssoVerifier,
		TokenManager:   tokenManager,
		Identities:     identityService,
		Directory:      directoryService,
		ScoringTables:  tables,
		Rosters:        rosterManager,
		Conducts:       conductsService,
		Realtime:       dispatcher,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSeed(ctx context.Context, membersPath, tablesPath string) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if membersPath != "" {
		raw, err := os.ReadFile(membersPath)
		if err != nil {
			return err
		}
		var members []directory.Member
		if err := json.Unmarshal(raw, &members); err != nil {
			return err
		}
		directoryService, err := directory.NewService(directory.ServiceConfig{
			Database:   db,
			IDProvider: roster.NewUUIDProvider(),
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		if err := directoryService.SeedMembers(ctx, members); err != nil {
			return err
		}
		logger.Info("directory members seeded", zap.Int("count", len(members)))
	}

	if tablesPath != "" {
		raw, err := os.ReadFile(tablesPath)
		if err != nil {
			return err
		}
		var tables []scoring.Table
		if err := json.Unmarshal(raw, &tables); err != nil {
			return err
		}
		store, err := scoring.NewStore(db)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := store.ReplaceTable(ctx, table); err != nil {
				return err
			}
		}
		logger.Info("scoring tables seeded", zap.Int("count", len(tables)))
	}

	return nil
}
