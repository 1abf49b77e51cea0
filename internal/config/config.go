// Package config provides configuration management for the mediation router.
// It loads configuration from environment variables with sensible defaults and
// validates it so the gateway refuses to start with unsafe settings.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Gateway listener port (default: 8280)
//   - ADMIN_PORT: Admin API and metrics port (default: 9190)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file; logs go to stdout when unset
//   - LOG_FORMAT: console or json (default: console)
//   - TLS_CERT_FILE / TLS_KEY_FILE: Serve the gateway over TLS when both are set
//
// API Deployment:
//   - API_DEFINITIONS_DIR: Directory of API definition files (default: ./apis)
//   - API_AUTO_RELOAD: Watch the directory and redeploy on change (default: true)
//   - API_RELOAD_DEBOUNCE_MS: Quiet period before a reload (default: 500)
//
// Connection Pool:
//   - POOL_MAX_PER_ROUTE: Connections per route, leased plus idle (default: 32)
//   - POOL_IDLE_TIMEOUT: How long an idle connection stays reusable (default: 60s)
//   - POOL_MAX_LIFETIME: Maximum age of a pooled connection, 0 disables (default: 10m)
//   - POOL_CONNECT_TIMEOUT: Dial timeout for new connections (default: 5s)
//   - POOL_EVICT_SCHEDULE: Cron schedule for idle eviction (default: @every 30s)
//   - UPSTREAM_TIMEOUT: Deadline for one forwarded exchange (default: 30s)
//
// Cluster Sync:
//   - CLUSTER_SYNC_ENABLED: Share deployments across nodes through Redis (default: false)
//   - CLUSTER_SYNC_CHANNEL: Redis channel for deployment events (default: mediation:apis)
//   - NODE_ID: Identifier of this node (default: hostname)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Metrics:
//   - METRICS_ENABLED: Expose Prometheus metrics on the admin port (default: true)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration values for the mediation router.
// It is loaded using Load() and should be validated with Validate() before use.
type Config struct {
	// Application settings
	Port      string // Gateway listener port
	AdminPort string // Admin API listener port
	LogLevel  string // Logging level (debug, info, warn, error)
	LogFile   string // Optional log file path
	TLSCert   string // TLS certificate file for the gateway listener
	TLSKey    string // TLS key file for the gateway listener

	// API deployment
	DefinitionsDir string        // Directory holding API definition files
	AutoReload     bool          // Whether to watch DefinitionsDir
	ReloadDebounce time.Duration // Quiet period before reloading

	// Connection pool
	PoolMaxPerRoute    int           // Cap on leased + idle connections per route
	PoolIdleTimeout    time.Duration // Idle connection expiry
	PoolMaxLifetime    time.Duration // Connection age limit, 0 disables
	PoolConnectTimeout time.Duration // Dial timeout
	PoolEvictSchedule  string        // Cron schedule for idle eviction
	UpstreamTimeout    time.Duration // Deadline for a forwarded request and its response

	// Cluster sync over Redis
	ClusterSyncEnabled bool
	ClusterSyncChannel string
	NodeID             string
	RedisAddress       string
	RedisPassword      string
	RedisDB            int

	// Metrics
	MetricsEnabled bool
}

// Load creates a new Config with values from environment variables.
// Unset or unparsable variables fall back to their defaults; call Validate() on
// the result to check ranges and cross-field dependencies.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8280"),
		AdminPort: getEnv("ADMIN_PORT", "9190"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		TLSCert:   getEnv("TLS_CERT_FILE", ""),
		TLSKey:    getEnv("TLS_KEY_FILE", ""),

		DefinitionsDir: getEnv("API_DEFINITIONS_DIR", "./apis"),
		AutoReload:     getBoolEnv("API_AUTO_RELOAD", true),
		ReloadDebounce: time.Duration(getIntEnv("API_RELOAD_DEBOUNCE_MS", 500)) * time.Millisecond,

		PoolMaxPerRoute:    getIntEnv("POOL_MAX_PER_ROUTE", 32),
		PoolIdleTimeout:    getDurationEnv("POOL_IDLE_TIMEOUT", 60*time.Second),
		PoolMaxLifetime:    getDurationEnv("POOL_MAX_LIFETIME", 10*time.Minute),
		PoolConnectTimeout: getDurationEnv("POOL_CONNECT_TIMEOUT", 5*time.Second),
		PoolEvictSchedule:  getEnv("POOL_EVICT_SCHEDULE", "@every 30s"),
		UpstreamTimeout:    getDurationEnv("UPSTREAM_TIMEOUT", 30*time.Second),

		ClusterSyncEnabled: getBoolEnv("CLUSTER_SYNC_ENABLED", false),
		ClusterSyncChannel: getEnv("CLUSTER_SYNC_CHANNEL", "mediation:apis"),
		NodeID:             getEnv("NODE_ID", defaultNodeID()),
		RedisAddress:       getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getIntEnv("REDIS_DB", 0),

		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
	}
}

// Validate checks ports, pool limits, the eviction schedule and the cluster sync
// settings. It returns a descriptive error for the first problem found.
func (c *Config) Validate() error {
	if !validPort(c.Port) {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}
	if !validPort(c.AdminPort) {
		return fmt.Errorf("ADMIN_PORT must be a valid port number between 1 and 65535")
	}
	if c.Port == c.AdminPort {
		return fmt.Errorf("PORT and ADMIN_PORT must differ")
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if strings.TrimSpace(c.DefinitionsDir) == "" {
		return fmt.Errorf("API_DEFINITIONS_DIR must not be empty")
	}
	if c.ReloadDebounce < 0 {
		return fmt.Errorf("API_RELOAD_DEBOUNCE_MS must not be negative")
	}

	if c.PoolMaxPerRoute < 1 {
		return fmt.Errorf("POOL_MAX_PER_ROUTE must be a positive number")
	}
	if c.PoolIdleTimeout <= 0 {
		return fmt.Errorf("POOL_IDLE_TIMEOUT must be a positive duration")
	}
	if c.PoolMaxLifetime < 0 {
		return fmt.Errorf("POOL_MAX_LIFETIME must not be negative")
	}
	if c.PoolConnectTimeout <= 0 {
		return fmt.Errorf("POOL_CONNECT_TIMEOUT must be a positive duration")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be a positive duration")
	}
	if _, err := cron.ParseStandard(c.PoolEvictSchedule); err != nil {
		return fmt.Errorf("POOL_EVICT_SCHEDULE is not a valid cron schedule: %v", err)
	}

	if c.ClusterSyncEnabled {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when CLUSTER_SYNC_ENABLED is set")
		}
		if c.ClusterSyncChannel == "" {
			return fmt.Errorf("CLUSTER_SYNC_CHANNEL must not be empty")
		}
		if c.NodeID == "" {
			return fmt.Errorf("NODE_ID must not be empty")
		}
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}

	return nil
}

// TLSEnabled reports whether the gateway listener should serve TLS
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool forms; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func validPort(port string) bool {
	p, err := strconv.Atoi(port)
	return err == nil && p >= 1 && p <= 65535
}

func defaultNodeID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "node-1"
}
