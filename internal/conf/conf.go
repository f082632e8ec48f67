package conf

import "time"

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server  *Server
	Stream  *Stream
	Circuit *Circuit
	Data    *Data
	Webhook *Webhook
	Log     *Log
}

// Server configures the listeners.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

// Server_HTTP is the HTTP listener.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Server_GRPC is the gRPC listener serving health checks.
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Stream configures the supervised push stream.
type Stream struct {
	// Name identifies the stream in logs, metrics and Redis keys.
	Name              string
	URL               string
	Headers           map[string]string
	ProxyURL          string
	ConnectTimeout    time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// AutoConnect opens the stream when the server starts.
	AutoConnect bool
}

// Circuit configures the breaker guarding the stream.
type Circuit struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MonitoringPeriod time.Duration
	HalfOpenRequests int
}

// Data configures the status and metrics sinks.
type Data struct {
	Redis *Data_Redis
}

// Data_Redis is the Redis connection used for status publishing.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// StatusTTL is how long a published status stays visible without a refresh.
	StatusTTL time.Duration
	// PublishInterval is the period of status publishing. Zero disables it.
	PublishInterval time.Duration
}

// Webhook configures circuit notifications.
type Webhook struct {
	Enabled bool
	URLs    []string
	Timeout time.Duration
}

// Log configures logging.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
