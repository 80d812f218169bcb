// Package config loads relay configuration from the environment and the
// providers YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process-level settings sourced from the environment.
type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string

	// AuthSecret signs and verifies admin API tokens (HS256). Empty
	// disables authenticated routes.
	AuthSecret string

	// PostgresDSN enables the postgres submission store when set.
	PostgresDSN string

	ProvidersPath string

	ChainID     string
	EntryPoint  string
	NonceMethod string

	RequestTimeout   time.Duration
	MaxRetries       int
	FailureThreshold int
	ResetTime        time.Duration

	CacheTTL     time.Duration
	LockTTL      time.Duration
	ReapInterval time.Duration

	ConfirmationTimeout time.Duration
	PollInterval        time.Duration

	GlobalTPS     float64
	PerAccountTPS float64
}

// FromEnv builds a Config from environment variables with defaults.
func FromEnv() Config {
	return Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		AuthSecret:          os.Getenv("AUTH_SECRET"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		ProvidersPath:       envOr("PROVIDERS_CONFIG", "config/providers.yaml"),
		ChainID:             envOr("CHAIN_ID", "1"),
		EntryPoint:          envOr("ENTRY_POINT", "0x5ff137d4b0fdcd49dca30c7cf57e578a026d2789"),
		NonceMethod:         os.Getenv("NONCE_METHOD"),
		RequestTimeout:      envDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:          envInt("MAX_RETRIES", 3),
		FailureThreshold:    envInt("FAILURE_THRESHOLD", 3),
		ResetTime:           envDuration("CIRCUIT_RESET_TIME", 30*time.Second),
		CacheTTL:            envDuration("SEQUENCE_CACHE_TTL", 30*time.Second),
		LockTTL:             envDuration("LOCK_TTL", time.Hour),
		ReapInterval:        envDuration("REAP_INTERVAL", time.Hour),
		ConfirmationTimeout: envDuration("CONFIRMATION_TIMEOUT", 2*time.Minute),
		PollInterval:        envDuration("POLL_INTERVAL", 2*time.Second),
		GlobalTPS:           envFloat("SUBMIT_GLOBAL_TPS", 50),
		PerAccountTPS:       envFloat("SUBMIT_ACCOUNT_TPS", 5),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// ProviderSetting describes one configured RPC/bundler endpoint.
type ProviderSetting struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	URL      string `yaml:"url"`
	// APIKeyEnv names the environment variable holding this provider's
	// credential, substituted into the URL's {apiKey} placeholder.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// ProvidersConfig is the providers YAML document.
type ProvidersConfig struct {
	Providers []ProviderSetting `yaml:"providers"`
}

// LoadProviders loads the providers configuration from path.
func LoadProviders(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("providers config %s lists no providers", path)
	}
	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if p.URL == "" {
			return nil, fmt.Errorf("provider %s: url is required", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}
	return &cfg, nil
}

// LoadProvidersOrDefault loads providers config or falls back to a single
// local endpoint when the file is missing.
func LoadProvidersOrDefault(path string) *ProvidersConfig {
	cfg, err := LoadProviders(path)
	if err != nil {
		return DefaultProvidersConfig()
	}
	return cfg
}

// DefaultProvidersConfig returns a single localhost provider.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Providers: []ProviderSetting{
			{Name: "local", Priority: 1, URL: "http://localhost:8545"},
		},
	}
}

// Credentials resolves each provider's API key from its configured
// environment variable.
func (c *ProvidersConfig) Credentials() map[string]string {
	creds := make(map[string]string)
	for _, p := range c.Providers {
		if p.APIKeyEnv != "" {
			creds[p.Name] = os.Getenv(p.APIKeyEnv)
		}
	}
	return creds
}
