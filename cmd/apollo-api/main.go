package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/advisor"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/classroom"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/config"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/database"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/roster"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/server"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "apollo-api",
		Short: "Apollo classroom roster and task backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

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
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "SQLite path or PostgreSQL DSN")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("classroom-endpoint", defaults.GetString("classroom.endpoint"), "Classroom API base URL override")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for sync status caching")
	cmd.PersistentFlags().StringSlice("cors-allowed-origins", nil, "Browser origins allowed to send credentialed requests")
	cmd.PersistentFlags().Int("distribution-parallelism", defaults.GetInt("distribution.parallelism"), "Concurrent task writes per distribution")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "classroom.endpoint", "classroom-endpoint")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "distribution.parallelism", "distribution-parallelism")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	store, err := records.NewGormStore(records.GormStoreConfig{
		Database:   db,
		IDProvider: records.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	statusCache, closeCache, err := buildStatusCache(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	engine, err := roster.NewEngine(roster.EngineConfig{
		Client: classroom.NewGoogleClient(classroom.GoogleClientConfig{
			Endpoint: appConfig.ClassroomEndpoint,
			Timeout:  appConfig.ClassroomTimeout,
			Logger:   logger,
		}),
		Store:    store,
		Recorder: statusCache,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	interventionAdvisor, closeAdvisor, err := buildAdvisor(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeAdvisor()

	distributor, err := tasks.NewDistributor(tasks.DistributorConfig{
		Store:       store,
		IDProvider:  records.NewUUIDProvider(),
		Advisor:     interventionAdvisor,
		Clock:       time.Now,
		Parallelism: appConfig.DistributionParallelism,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            userService,
		RosterSync:       engine,
		Distributor:      distributor,
		Records:          store,
		StatusReader:     statusCache,
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		Logger:           logger,
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

func buildStatusCache(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (cache.StatusCache, func(), error) {
	if appConfig.RedisAddress == "" {
		logger.Info("redis not configured; sync status kept in memory")
		return cache.NewMemoryStatusCache(), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, appConfig.RedisAddress)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisStatusCache(client, appConfig.SyncStatusTTL, logger), func() { _ = client.Close() }, nil
}

func buildAdvisor(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (tasks.Advisor, func(), error) {
	if appConfig.GeminiAPIKey == "" {
		logger.Info("gemini not configured; using fixture intervention advisor")
		return advisor.NewFixtureAdvisor(), func() {}, nil
	}
	client, model, err := advisor.NewGeminiClient(ctx, appConfig.GeminiAPIKey, appConfig.GeminiModel)
	if err != nil {
		return nil, nil, err
	}
	geminiAdvisor, err := advisor.NewGeminiAdvisor(advisor.GeminiAdvisorConfig{
		Generator: model,
		Logger:    logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return geminiAdvisor, func() { _ = client.Close() }, nil
}
