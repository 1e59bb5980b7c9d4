package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "IPPT"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "ippt.db"
	defaultLogLevel     = "info"
	defaultTokenIssuer  = "ippt-auth"
	defaultAudience     = "ippt-backend"
	defaultTokenTTL     = 12 * time.Hour
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	SigningSecret  string
	TokenIssuer    string
	TokenAudience  string
	TokenTTL       time.Duration
	SSOJWKSURL     string
	SSOIssuers     []string
	AllowedOrigins []string
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
	configViper.SetDefault("auth.token_issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenIssuer:    configViper.GetString("auth.token_issuer"),
		TokenAudience:  configViper.GetString("auth.token_audience"),
		TokenTTL:       configViper.GetDuration("auth.token_ttl"),
		SSOJWKSURL:     configViper.GetString("sso.jwks_url"),
		SSOIssuers:     splitList(configViper.GetString("sso.issuers")),
		AllowedOrigins: splitList(configViper.GetString("http.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SSOJWKSURL) == "" {
		return fmt.Errorf("sso.jwks_url is required")
	}
	if len(c.SSOIssuers) == 0 {
		return fmt.Errorf("sso.issuers is required")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
