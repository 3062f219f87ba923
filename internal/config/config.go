package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Ask           AskConfig
	Postgres      BackendConfig
	MySQL         BackendConfig
	SQLite        BackendConfig
	Cassandra     BackendConfig
	Lakehouse     BackendConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// AskConfig carries the independent per-stage deadlines of an ask cycle.
type AskConfig struct {
	ConnectTimeout   time.Duration
	TranslateTimeout time.Duration
	ExecuteTimeout   time.Duration
}

// BackendConfig configures one backend connection. Database doubles as the
// file path for sqlite and the bucket for the lakehouse; TLSVerify doubles as
// the SSL switch for the lakehouse object store.
type BackendConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Database      string
	User          string
	Password      string
	TLSVerify     bool
	TLSCACert     string
	TLSClientCert string
	TLSClientKey  string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("NLBRIDGE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid NLBRIDGE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "NLBRIDGE_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLBRIDGE_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLBRIDGE_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLBRIDGE_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLBRIDGE_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "NLBRIDGE_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "NLBRIDGE_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_ASK_CONNECT_TIMEOUT", &cfg.Ask.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_ASK_TRANSLATE_TIMEOUT", &cfg.Ask.TranslateTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "NLBRIDGE_ASK_EXECUTE_TIMEOUT", &cfg.Ask.ExecuteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBackend(lookup, "NLBRIDGE_POSTGRES", &cfg.Postgres); err != nil {
		return Config{}, err
	}
	if err := applyBackend(lookup, "NLBRIDGE_MYSQL", &cfg.MySQL); err != nil {
		return Config{}, err
	}
	if err := applyBackend(lookup, "NLBRIDGE_SQLITE", &cfg.SQLite); err != nil {
		return Config{}, err
	}
	if err := applyBackend(lookup, "NLBRIDGE_CASSANDRA", &cfg.Cassandra); err != nil {
		return Config{}, err
	}
	if err := applyBackend(lookup, "NLBRIDGE_LAKEHOUSE", &cfg.Lakehouse); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "NLBRIDGE_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "NLBRIDGE_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "NLBRIDGE_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLBRIDGE_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "nlbridge-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-5",
			Temperature: 0.1,
			Timeout:     15 * time.Second,
		},
		Ask: AskConfig{
			ConnectTimeout:   10 * time.Second,
			TranslateTimeout: 20 * time.Second,
			ExecuteTimeout:   30 * time.Second,
		},
		Postgres: BackendConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "nlbridge",
			User:     "nlbridge",
		},
		MySQL: BackendConfig{
			Host:     "localhost",
			Port:     3306,
			Database: "nlbridge",
			User:     "nlbridge",
		},
		SQLite: BackendConfig{
			Enabled:  true,
			Database: "nlbridge.db",
		},
		Cassandra: BackendConfig{
			Host:     "localhost",
			Port:     9042,
			Database: "nlbridge",
		},
		Lakehouse: BackendConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "nlbridge",
			User:     "minio",
			Password: "miniostorage",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.SQLite.Database = "file::memory:?cache=shared"
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.SQLite.Enabled = false
		cfg.Postgres.TLSVerify = true
		cfg.MySQL.TLSVerify = true
		cfg.Cassandra.TLSVerify = true
		cfg.Lakehouse.TLSVerify = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyBackend(lookup LookupFunc, prefix string, dst *BackendConfig) error {
	if err := applyBool(lookup, prefix+"_ENABLED", &dst.Enabled); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_HOST", &dst.Host); err != nil {
		return err
	}
	if err := applyInt(lookup, prefix+"_PORT", &dst.Port); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_DATABASE", &dst.Database); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_USER", &dst.User); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_PASSWORD", &dst.Password); err != nil {
		return err
	}
	if err := applyBool(lookup, prefix+"_TLS_VERIFY", &dst.TLSVerify); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_TLS_CA_CERT", &dst.TLSCACert); err != nil {
		return err
	}
	if err := applyString(lookup, prefix+"_TLS_CLIENT_CERT", &dst.TLSClientCert); err != nil {
		return err
	}
	return applyString(lookup, prefix+"_TLS_CLIENT_KEY", &dst.TLSClientKey)
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
