// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables.
package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NewBootstrap loads the configuration file at configPath, applies defaults and
// environment overrides prefixed with MOMENTUM_, and validates the result.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required:
//   - stream.url (MOMENTUM_STREAM_URL): the push stream endpoint
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MOMENTUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	_ = v.BindEnv("stream.url", "MOMENTUM_STREAM_URL")
	_ = v.BindEnv("stream.proxy_url", "MOMENTUM_STREAM_PROXY_URL", "STREAM_PROXY")
	_ = v.BindEnv("data.redis.password", "MOMENTUM_DATA_REDIS_PASSWORD", "REDIS_PASSWORD")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: v.GetDuration("server.grpc.timeout"),
			},
		},
		Stream: &Stream{
			Name:              v.GetString("stream.name"),
			URL:               v.GetString("stream.url"),
			Headers:           v.GetStringMapString("stream.headers"),
			ProxyURL:          v.GetString("stream.proxy_url"),
			ConnectTimeout:    v.GetDuration("stream.connect_timeout"),
			ReconnectDelay:    v.GetDuration("stream.reconnect_delay"),
			MaxReconnectDelay: v.GetDuration("stream.max_reconnect_delay"),
			HeartbeatInterval: v.GetDuration("stream.heartbeat_interval"),
			HeartbeatTimeout:  v.GetDuration("stream.heartbeat_timeout"),
			AutoConnect:       v.GetBool("stream.auto_connect"),
		},
		Circuit: &Circuit{
			FailureThreshold: v.GetInt("circuit.failure_threshold"),
			ResetTimeout:     v.GetDuration("circuit.reset_timeout"),
			MonitoringPeriod: v.GetDuration("circuit.monitoring_period"),
			HalfOpenRequests: v.GetInt("circuit.half_open_requests"),
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:         v.GetString("data.redis.network"),
				Addr:            v.GetString("data.redis.addr"),
				Password:        v.GetString("data.redis.password"),
				DB:              v.GetInt("data.redis.db"),
				ReadTimeout:     v.GetDuration("data.redis.read_timeout"),
				WriteTimeout:    v.GetDuration("data.redis.write_timeout"),
				StatusTTL:       v.GetDuration("data.redis.status_ttl"),
				PublishInterval: v.GetDuration("data.redis.publish_interval"),
			},
		},
		Webhook: &Webhook{
			Enabled: v.GetBool("webhook.enabled"),
			URLs:    v.GetStringSlice("webhook.urls"),
			Timeout: v.GetDuration("webhook.timeout"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)
	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	v.SetDefault("stream.name", "default")
	v.SetDefault("stream.connect_timeout", 30*time.Second)
	v.SetDefault("stream.reconnect_delay", time.Second)
	v.SetDefault("stream.max_reconnect_delay", 30*time.Second)
	v.SetDefault("stream.heartbeat_interval", 30*time.Second)
	v.SetDefault("stream.heartbeat_timeout", 10*time.Second)
	v.SetDefault("stream.auto_connect", true)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout", time.Minute)
	v.SetDefault("circuit.monitoring_period", 10*time.Second)
	v.SetDefault("circuit.half_open_requests", 1)

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.status_ttl", 2*time.Minute)
	v.SetDefault("data.redis.publish_interval", 15*time.Second)

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks required fields and value ranges.
// It returns an error listing every problem found.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Stream == nil || bc.Stream.URL == "" {
		problems = append(problems, "stream.url (MOMENTUM_STREAM_URL) is required")
	} else if u, err := url.Parse(bc.Stream.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, "stream.url must be an http or https URL")
	}

	if bc.Stream != nil && bc.Stream.MaxReconnectDelay > 0 && bc.Stream.MaxReconnectDelay < bc.Stream.ReconnectDelay {
		problems = append(problems, "stream.max_reconnect_delay must not be below stream.reconnect_delay")
	}

	if bc.Circuit != nil {
		if bc.Circuit.FailureThreshold < 1 {
			problems = append(problems, "circuit.failure_threshold must be at least 1")
		}
		if bc.Circuit.HalfOpenRequests < 1 {
			problems = append(problems, "circuit.half_open_requests must be at least 1")
		}
	}

	if bc.Webhook != nil && bc.Webhook.Enabled && len(bc.Webhook.URLs) == 0 {
		problems = append(problems, "webhook.urls is required when webhook.enabled is true")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
