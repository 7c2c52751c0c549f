// Package config loads and validates the proxy-wide and endpoint-list
// YAML configuration, per spec.md §6's options table.
//
// Grounded in the teacher's internal/config/config.go: the same
// two-file layout (proxy config + a list config, loaded and merged by
// Load), the same validate-then-applyDefaults sequence, generalized
// from buckets to endpoints and with the TDS-specific PinningMode/
// database-routing fields dropped (spec.md Non-goals: no routing).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joao-brasil/connpool/pkg/address"
)

// ProxyConfig holds the frontend-facing and observability settings.
type ProxyConfig struct {
	ListenAddr          string        `yaml:"listen_addr"`
	ListenPort          int           `yaml:"listen_port"`
	InstanceID          string        `yaml:"instance_id"`
	SessionTimeout      time.Duration `yaml:"session_timeout"`
	QueueTimeout        time.Duration `yaml:"queue_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckPort     int           `yaml:"health_check_port"`
	MetricsPort         int           `yaml:"metrics_port"`
}

// RedisConfig configures the Redis client used for cross-instance event
// fan-out and instance heartbeats.
type RedisConfig struct {
	Addr              string        `yaml:"addr"`
	Password          string        `yaml:"password"`
	DB                int           `yaml:"db"`
	PoolSize          int           `yaml:"pool_size"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTTL      time.Duration `yaml:"heartbeat_ttl"`
}

// Config is the root configuration structure.
type Config struct {
	Proxy     ProxyConfig
	Redis     RedisConfig
	Endpoints []address.Endpoint
}

type proxyFileConfig struct {
	Proxy ProxyConfig `yaml:"proxy"`
	Redis RedisConfig `yaml:"redis"`
}

type endpointsFileConfig struct {
	Endpoints []address.Endpoint `yaml:"endpoints"`
}

// Load reads and parses both the proxy config and the endpoint list.
func Load(proxyConfigPath, endpointsConfigPath string) (*Config, error) {
	proxyData, err := os.ReadFile(proxyConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading proxy config %s: %w", proxyConfigPath, err)
	}
	var proxyFile proxyFileConfig
	if err := yaml.Unmarshal(proxyData, &proxyFile); err != nil {
		return nil, fmt.Errorf("config: parsing proxy config %s: %w", proxyConfigPath, err)
	}

	endpointsData, err := os.ReadFile(endpointsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading endpoints config %s: %w", endpointsConfigPath, err)
	}
	var endpointsFile endpointsFileConfig
	if err := yaml.Unmarshal(endpointsData, &endpointsFile); err != nil {
		return nil, fmt.Errorf("config: parsing endpoints config %s: %w", endpointsConfigPath, err)
	}

	cfg := &Config{
		Proxy:     proxyFile.Proxy,
		Redis:     proxyFile.Redis,
		Endpoints: endpointsFile.Endpoints,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Proxy.ListenPort == 0 {
		return fmt.Errorf("proxy.listen_port is required")
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint must be configured")
	}
	for i, ep := range c.Endpoints {
		if ep.ID == "" {
			return fmt.Errorf("endpoints[%d].id is required", i)
		}
		if ep.Host == "" {
			return fmt.Errorf("endpoints[%d].host is required", i)
		}
		if !ep.IsUnixSocket() && ep.Port == 0 {
			return fmt.Errorf("endpoints[%d].port is required", i)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Proxy.ListenAddr == "" {
		c.Proxy.ListenAddr = "0.0.0.0"
	}
	if c.Proxy.SessionTimeout == 0 {
		c.Proxy.SessionTimeout = 5 * time.Minute
	}
	if c.Proxy.QueueTimeout == 0 {
		c.Proxy.QueueTimeout = 30 * time.Second
	}
	if c.Proxy.HealthCheckInterval == 0 {
		c.Proxy.HealthCheckInterval = 15 * time.Second
	}
	if c.Proxy.HealthCheckPort == 0 {
		c.Proxy.HealthCheckPort = 8080
	}
	if c.Proxy.MetricsPort == 0 {
		c.Proxy.MetricsPort = 9090
	}
	if c.Proxy.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.Proxy.InstanceID = hostname
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "redis:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.HeartbeatInterval == 0 {
		c.Redis.HeartbeatInterval = 10 * time.Second
	}
	if c.Redis.HeartbeatTTL == 0 {
		c.Redis.HeartbeatTTL = 30 * time.Second
	}

	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.MaxPoolSize == 0 {
			ep.MaxPoolSize = 100
		}
		if ep.MinPoolSize == 0 {
			ep.MinPoolSize = 2
		}
		if ep.MaxIdleTime == 0 {
			ep.MaxIdleTime = 5 * time.Minute
		}
		if ep.ConnectTimeout == 0 {
			ep.ConnectTimeout = 30 * time.Second
		}
		if ep.WaitQueueTimeout == 0 {
			ep.WaitQueueTimeout = c.Proxy.QueueTimeout
		}
		if ep.CheckInterval == 0 {
			ep.CheckInterval = time.Second
		}
	}
}

// EndpointByID returns the endpoint configuration for a given id.
func (c *Config) EndpointByID(id string) (*address.Endpoint, bool) {
	for i := range c.Endpoints {
		if c.Endpoints[i].ID == id {
			return &c.Endpoints[i], true
		}
	}
	return nil, false
}
