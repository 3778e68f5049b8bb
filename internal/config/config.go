package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Keycloak KeycloakConfig
	Decision DecisionConfig
	AuditDB  PostgresConfig `mapstructure:"audit_db"`
	Control  ControlConfig
	Feed     FeedConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig configures the shared remote document store (Redis-backed)
type StoreConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AdminEmail   string `mapstructure:"admin_email"`
}

// DecisionConfig configures the external irrigation prediction backend
type DecisionConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ControlConfig configures per-device control sessions
type ControlConfig struct {
	DefaultDeviceID string `mapstructure:"default_device_id"`
}

// FeedConfig configures the notification/request aggregation views
type FeedConfig struct {
	WindowDays    int           `mapstructure:"window_days"`
	RenderDelay   time.Duration `mapstructure:"render_delay"`
	DisplayZone   string        `mapstructure:"display_zone"`
	OperatorScope string        `mapstructure:"operator_scope"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("HYDROGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Store defaults
	viper.SetDefault("store.port", 6379)
	viper.SetDefault("store.db", 0)

	// Decision backend defaults
	viper.SetDefault("decision.timeout", "15s")
	viper.SetDefault("decision.cooldown", "1500ms")

	// Audit DB defaults
	viper.SetDefault("audit_db.sslmode", "disable")

	// Control defaults
	viper.SetDefault("control.default_device_id", "HG-01")

	// Feed defaults
	viper.SetDefault("feed.window_days", 7)
	viper.SetDefault("feed.render_delay", "120ms")
	viper.SetDefault("feed.display_zone", "Asia/Makassar")
	viper.SetDefault("feed.operator_scope", "operator")
}

func validateConfig(config *Config) error {
	if config.Store.Host == "" {
		return fmt.Errorf("store host is required")
	}
	if config.Keycloak.URL == "" {
		return fmt.Errorf("keycloak URL is required")
	}
	// Decision endpoint is optional, but if set it must be well formed.
	// A malformed endpoint fails here rather than on the first run.
	if config.Decision.Endpoint != "" {
		if err := ValidateDecisionEndpoint(config.Decision.Endpoint); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDecisionEndpoint checks that the prediction endpoint is a
// syntactically valid http(s) URL.
func ValidateDecisionEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("decision endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("decision endpoint must use http or https, got %q", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("decision endpoint has no host: %q", endpoint)
	}
	return nil
}
