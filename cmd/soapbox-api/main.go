package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soapboxlabs/soapbox/internal/auth"
	"github.com/soapboxlabs/soapbox/internal/config"
	"github.com/soapboxlabs/soapbox/internal/database"
	"github.com/soapboxlabs/soapbox/internal/discordapi"
	"github.com/soapboxlabs/soapbox/internal/logging"
	"github.com/soapboxlabs/soapbox/internal/render"
	"github.com/soapboxlabs/soapbox/internal/server"
	"github.com/soapboxlabs/soapbox/internal/storage"
	"github.com/soapboxlabs/soapbox/internal/suggestions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "soapbox-api",
		Short: "Soapbox suggestion lifecycle service",
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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "API token signing secret (overrides env)")
	cmd.PersistentFlags().String("discord-token", "", "Discord bot token (overrides env)")
	cmd.PersistentFlags().String("discord-api-base", defaults.GetString("discord.api_base"), "Discord API base URL")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "discord.token", "discord-token")
	bindFlag(cmd, "discord.api_base", "discord-api-base")
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

	store, err := storage.NewStore(db)
	if err != nil {
		return err
	}

	messages, err := discordapi.NewClient(discordapi.ClientConfig{
		BotToken: appConfig.DiscordBotToken,
		BaseURL:  appConfig.DiscordAPIBase,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	suggestionService, err := suggestions.NewService(suggestions.ServiceConfig{
		Repository: store,
		Messages:   messages,
		Renderer:   render.NewRenderer(),
		IDProvider: suggestions.NewUUIDProvider(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Suggestions: suggestionService,
		Store:       store,
		Tokens:      tokenIssuer,
		Logger:      logger,
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
