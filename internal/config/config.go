// Package config provides configuration management for both services
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// GatewayManager handles routing dispatcher configuration
type GatewayManager struct {
	config *types.GatewayConfig
	viper  *viper.Viper
}

// NewGatewayManager creates a new gateway configuration manager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{viper: newViper("gateway")}
}

// Load loads configuration from file, environment and defaults
func (m *GatewayManager) Load() error {
	setGatewayDefaults(m.viper)

	if err := readConfig(m.viper); err != nil {
		return err
	}

	config := &types.GatewayConfig{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.config = config
	return nil
}

// Get returns the current configuration
func (m *GatewayManager) Get() *types.GatewayConfig {
	return m.config
}

// Watch starts watching for configuration changes. The callback receives the
// freshly unmarshaled config; classifier patterns and API keys pick up the
// new values on the next request.
func (m *GatewayManager) Watch(callback func(*types.GatewayConfig)) {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		config := &types.GatewayConfig{}
		if err := m.viper.Unmarshal(config); err != nil {
			return
		}
		m.config = config
		if callback != nil {
			callback(config)
		}
	})
}

// Validate validates the configuration
func (m *GatewayManager) Validate() error {
	if m.config == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if m.config.Server.Port <= 0 || m.config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", m.config.Server.Port)
	}
	if m.config.Backends.PrimaryURL == "" {
		return fmt.Errorf("backends.primary_url is required")
	}
	if m.config.Backends.FallbackRuntimeURL == "" {
		return fmt.Errorf("backends.fallback_runtime_url is required")
	}
	if len(m.config.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must contain at least one key")
	}
	if m.config.Health.MaxFailures <= 0 {
		return fmt.Errorf("health.max_failures must be positive")
	}
	return nil
}

// ProxyManager handles inference proxy configuration
type ProxyManager struct {
	config *types.ProxyConfig
	viper  *viper.Viper
}

// NewProxyManager creates a new proxy configuration manager
func NewProxyManager() *ProxyManager {
	return &ProxyManager{viper: newViper("proxy")}
}

// Load loads configuration from file, environment and defaults
func (m *ProxyManager) Load() error {
	setProxyDefaults(m.viper)

	if err := readConfig(m.viper); err != nil {
		return err
	}

	config := &types.ProxyConfig{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.config = config
	return nil
}

// Get returns the current configuration
func (m *ProxyManager) Get() *types.ProxyConfig {
	return m.config
}

// Validate validates the configuration
func (m *ProxyManager) Validate() error {
	if m.config == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if m.config.Inference.BackendURL == "" {
		return fmt.Errorf("inference.backend_url is required")
	}
	if m.config.Inference.MaxConcurrent <= 0 {
		return fmt.Errorf("inference.max_concurrent must be positive")
	}
	if len(m.config.Auth.APIKeys) == 0 && m.config.Auth.ServiceSecret == "" {
		return fmt.Errorf("proxy requires auth.api_keys or auth.service_secret")
	}
	return nil
}

func newViper(name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, defaults and env vars apply
	}
	return nil
}

func setGatewayDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.idle_timeout", "120s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	// Audit-log defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "gateway")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "gateway")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	// Auth defaults
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.service_secret", "")
	v.SetDefault("auth.use_service_token", false)
	v.SetDefault("auth.token_expiration", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Cache defaults
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.key_prefix", "response")

	// Health monitor defaults
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.probe_timeout", "10s")
	v.SetDefault("health.max_failures", 3)
	v.SetDefault("health.state_ttl", "90s")
	v.SetDefault("health.state_key", "gateway:health_state")

	// Metrics defaults
	v.SetDefault("metrics.window_size", 100)

	// Backend defaults
	v.SetDefault("backends.primary_url", "http://localhost:8081")
	v.SetDefault("backends.fallback_runtime_url", "http://localhost:11434")
	v.SetDefault("backends.fallback_model", "llama3.2:3b")
	v.SetDefault("backends.request_timeout", "300s")
}

func setProxyDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.idle_timeout", "120s")

	// Auth defaults
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.service_secret", "")
	v.SetDefault("auth.use_service_token", false)
	v.SetDefault("auth.token_expiration", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Inference defaults
	v.SetDefault("inference.backend_url", "http://localhost:11434")
	v.SetDefault("inference.default_model", "llama3.1:8b")
	v.SetDefault("inference.tier_models", map[string]string{
		"medium":  "llama3.1:8b",
		"complex": "qwen2.5:32b",
	})
	v.SetDefault("inference.max_concurrent", 2)
	v.SetDefault("inference.acquire_timeout", "0s")
	v.SetDefault("inference.inference_timeout", "300s")
}
