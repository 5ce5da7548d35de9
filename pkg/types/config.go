package types

import (
	"time"
)

// GatewayConfig represents the routing dispatcher configuration
type GatewayConfig struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Health     HealthConfig     `mapstructure:"health"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
}

// ProxyConfig represents the inference proxy configuration
type ProxyConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Inference InferenceConfig `mapstructure:"inference"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// DatabaseConfig represents the optional Postgres audit-log configuration
type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// AuthConfig represents API-key authentication configuration.
// APIKeys holds accepted keys, either plaintext or bcrypt-hashed
// (hashes are recognized by their $2 prefix).
type AuthConfig struct {
	APIKeys         []string      `mapstructure:"api_keys"`
	ServiceSecret   string        `mapstructure:"service_secret"`
	UseServiceToken bool          `mapstructure:"use_service_token"`
	TokenExpiration time.Duration `mapstructure:"token_expiration"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CacheConfig represents response cache configuration
type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// HealthConfig represents the health monitor configuration
type HealthConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	MaxFailures  int           `mapstructure:"max_failures"`
	StateTTL     time.Duration `mapstructure:"state_ttl"`
	StateKey     string        `mapstructure:"state_key"`
}

// MetricsConfig represents metrics collector configuration
type MetricsConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

// BackendsConfig represents the backend targets known to the dispatcher
type BackendsConfig struct {
	PrimaryURL         string        `mapstructure:"primary_url"`
	FallbackRuntimeURL string        `mapstructure:"fallback_runtime_url"`
	FallbackModel      string        `mapstructure:"fallback_model"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// ClassifierConfig carries the tier pattern vocabulary. Empty lists fall
// back to the defaults shipped in the classifier package.
type ClassifierConfig struct {
	ComplexPatterns []string `mapstructure:"complex_patterns"`
	MediumPatterns  []string `mapstructure:"medium_patterns"`
	SimplePatterns  []string `mapstructure:"simple_patterns"`
}

// InferenceConfig represents the proxy's model runtime configuration
type InferenceConfig struct {
	BackendURL       string            `mapstructure:"backend_url"`
	DefaultModel     string            `mapstructure:"default_model"`
	TierModels       map[string]string `mapstructure:"tier_models"`
	MaxConcurrent    int               `mapstructure:"max_concurrent"`
	AcquireTimeout   time.Duration     `mapstructure:"acquire_timeout"`
	InferenceTimeout time.Duration     `mapstructure:"inference_timeout"`
}
