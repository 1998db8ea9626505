package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "SOAPBOX"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "soapbox.db"
	defaultLogLevel       = "info"
	defaultAuthIssuer     = "soapbox"
	defaultAuthAudience   = "soapbox-clients"
	defaultDiscordAPIBase = "https://discord.com/api/v10"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	AuthSigningSecret string
	AuthIssuer        string
	AuthAudience      string
	DiscordBotToken   string
	DiscordAPIBase    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("discord.api_base", defaultDiscordAPIBase)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		AuthAudience:      configViper.GetString("auth.audience"),
		DiscordBotToken:   configViper.GetString("discord.token"),
		DiscordAPIBase:    configViper.GetString("discord.api_base"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.DiscordBotToken) == "" {
		return fmt.Errorf("discord.token is required")
	}
	return nil
}
