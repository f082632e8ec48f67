package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `stream:
  url: https://events.example.com/stream
  headers:
    authorization: Bearer abc
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout)
	assert.Equal(t, ":9000", bc.Server.Grpc.Addr)

	assert.Equal(t, "https://events.example.com/stream", bc.Stream.URL)
	assert.Equal(t, "default", bc.Stream.Name)
	assert.Equal(t, map[string]string{"authorization": "Bearer abc"}, bc.Stream.Headers)
	assert.Equal(t, time.Second, bc.Stream.ReconnectDelay)
	assert.Equal(t, 30*time.Second, bc.Stream.MaxReconnectDelay)
	assert.Equal(t, 30*time.Second, bc.Stream.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, bc.Stream.HeartbeatTimeout)
	assert.True(t, bc.Stream.AutoConnect)

	assert.Equal(t, 5, bc.Circuit.FailureThreshold)
	assert.Equal(t, time.Minute, bc.Circuit.ResetTimeout)
	assert.Equal(t, 10*time.Second, bc.Circuit.MonitoringPeriod)
	assert.Equal(t, 1, bc.Circuit.HalfOpenRequests)

	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout)
	assert.Equal(t, 2*time.Minute, bc.Data.Redis.StatusTTL)
	assert.Equal(t, 15*time.Second, bc.Data.Redis.PublishInterval)

	assert.False(t, bc.Webhook.Enabled)
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, bc *Bootstrap)
	}{
		{
			name:    "stream url from env only",
			envVars: map[string]string{"MOMENTUM_STREAM_URL": "http://localhost:9000/events"},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, "http://localhost:9000/events", bc.Stream.URL)
			},
		},
		{
			name: "circuit threshold",
			envVars: map[string]string{
				"MOMENTUM_STREAM_URL":                "http://localhost:9000/events",
				"MOMENTUM_CIRCUIT_FAILURE_THRESHOLD": "9",
				"MOMENTUM_CIRCUIT_RESET_TIMEOUT":     "5s",
			},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, 9, bc.Circuit.FailureThreshold)
				assert.Equal(t, 5*time.Second, bc.Circuit.ResetTimeout)
			},
		},
		{
			name: "proxy alias",
			envVars: map[string]string{
				"MOMENTUM_STREAM_URL": "http://localhost:9000/events",
				"STREAM_PROXY":        "socks5://127.0.0.1:1080",
			},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, "socks5://127.0.0.1:1080", bc.Stream.ProxyURL)
			},
		},
		{
			name: "http addr",
			envVars: map[string]string{
				"MOMENTUM_STREAM_URL":       "http://localhost:9000/events",
				"MOMENTUM_SERVER_HTTP_ADDR": ":9999",
			},
			check: func(t *testing.T, bc *Bootstrap) {
				assert.Equal(t, ":9999", bc.Server.Http.Addr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			bc, err := NewBootstrap("")
			require.NoError(t, err)
			tt.check(t, bc)
		})
	}
}

func TestNewBootstrap_MissingFile(t *testing.T) {
	_, err := NewBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Bootstrap {
		return &Bootstrap{
			Stream:  &Stream{URL: "https://example.com/s", ReconnectDelay: time.Second, MaxReconnectDelay: time.Minute},
			Circuit: &Circuit{FailureThreshold: 5, HalfOpenRequests: 1},
			Webhook: &Webhook{},
		}
	}

	tests := []struct {
		name    string
		mutate  func(bc *Bootstrap)
		wantErr string
	}{
		{name: "valid", mutate: func(*Bootstrap) {}},
		{name: "missing url", mutate: func(bc *Bootstrap) { bc.Stream.URL = "" }, wantErr: "stream.url (MOMENTUM_STREAM_URL) is required"},
		{name: "bad scheme", mutate: func(bc *Bootstrap) { bc.Stream.URL = "ftp://example.com" }, wantErr: "http or https"},
		{name: "max below base", mutate: func(bc *Bootstrap) { bc.Stream.MaxReconnectDelay = time.Millisecond }, wantErr: "max_reconnect_delay"},
		{name: "zero threshold", mutate: func(bc *Bootstrap) { bc.Circuit.FailureThreshold = 0 }, wantErr: "failure_threshold"},
		{name: "webhook without urls", mutate: func(bc *Bootstrap) { bc.Webhook.Enabled = true }, wantErr: "webhook.urls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := valid()
			tt.mutate(bc)
			err := Validate(bc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ListsEveryProblem(t *testing.T) {
	err := Validate(&Bootstrap{Circuit: &Circuit{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.url")
	assert.Contains(t, err.Error(), "failure_threshold")
	assert.Contains(t, err.Error(), "half_open_requests")
}
