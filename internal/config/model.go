package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Model is the complete, resolved service configuration.
type Model struct {
	Server    Server
	Engine    Engine
	Dispatch  Dispatch
	Sessions  Sessions
	Catalog   Catalog
	WebSocket WebSocket
	Log       Log
}

// Server configures the HTTP listener.
type Server struct {
	Address           string
	MaxConnections    int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MaxBodyBytes      int64
}

// Engine selects and configures the interpreter.
type Engine struct {
	Kind           string
	Command        string
	Args           []string
	WorkDir        string
	Env            map[string]string
	MaxOutputBytes int
	// MaxDownloadBytes bounds each staged http(s) file; zero disables the limit.
	MaxDownloadBytes int64
}

// Dispatch sizes the worker pool and bounds execution time.
type Dispatch struct {
	Workers     int
	QueueDepth  int
	HTTPTimeout time.Duration
	WSTimeout   time.Duration
	MaxTimeout  time.Duration
}

// Sessions configures idle eviction. A zero IdleTimeout disables it.
type Sessions struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// Catalog selects where session metadata is recorded.
type Catalog struct {
	Backend   string
	RedisURL  string
	TTL       time.Duration
	KeyPrefix string
}

// WebSocket bounds individual connections.
type WebSocket struct {
	ReadLimit    int64
	WriteTimeout time.Duration
}

// Log configures the service logger. Watch enables hot reload of Level when
// the configuration file changes.
type Log struct {
	Level  string
	Format string
	Watch  bool
}

// Default returns the built-in configuration.
func Default() *Model {
	return &Model{
		Server: Server{
			Address:           ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodyBytes:      32 << 20,
		},
		Engine: Engine{
			Kind:             "python",
			MaxOutputBytes:   1 << 20,
			MaxDownloadBytes: 100 << 20,
		},
		Dispatch: Dispatch{
			Workers:     10,
			QueueDepth:  100,
			HTTPTimeout: 30 * time.Second,
			WSTimeout:   30 * time.Second,
			MaxTimeout:  10 * time.Minute,
		},
		Sessions: Sessions{
			ReapInterval: time.Minute,
		},
		Catalog: Catalog{
			Backend:   "memory",
			TTL:       time.Hour,
			KeyPrefix: "codebox:session:",
		},
		WebSocket: WebSocket{
			ReadLimit:    8 << 20,
			WriteTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports every problem with m at once.
func (m *Model) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.Server.Address == "" {
		add("server.address must not be empty")
	}
	if m.Server.MaxConnections < 0 {
		add("server.max_connections must not be negative")
	}
	if m.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}
	if m.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be positive")
	}
	if m.Engine.Kind == "" {
		add("engine.kind must not be empty")
	}
	if m.Engine.MaxOutputBytes < 0 {
		add("engine.max_output_bytes must not be negative")
	}
	if m.Engine.MaxDownloadBytes < 0 {
		add("engine.max_download_bytes must not be negative")
	}
	if m.Dispatch.Workers < 1 {
		add("dispatch.workers must be at least 1")
	}
	if m.Dispatch.QueueDepth < 1 {
		add("dispatch.queue_depth must be at least 1")
	}
	if m.Dispatch.HTTPTimeout <= 0 || m.Dispatch.WSTimeout <= 0 {
		add("dispatch timeouts must be positive")
	}
	if m.Dispatch.MaxTimeout < m.Dispatch.HTTPTimeout || m.Dispatch.MaxTimeout < m.Dispatch.WSTimeout {
		add("dispatch.max_timeout must not be lower than the default timeouts")
	}
	if m.Sessions.IdleTimeout < 0 {
		add("sessions.idle_timeout must not be negative")
	}
	if m.Sessions.IdleTimeout > 0 && m.Sessions.ReapInterval <= 0 {
		add("sessions.reap_interval must be positive when idle eviction is enabled")
	}
	switch m.Catalog.Backend {
	case "memory":
	case "redis":
		if m.Catalog.RedisURL == "" {
			add("catalog.redis_url is required for the redis backend")
		}
	default:
		add("catalog.backend must be 'memory' or 'redis', got %q", m.Catalog.Backend)
	}
	if m.WebSocket.ReadLimit <= 0 {
		add("websocket.read_limit must be positive")
	}
	switch m.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be 'debug', 'info', 'warn', or 'error', got %q", m.Log.Level)
	}
	switch m.Log.Format {
	case "json", "text":
	default:
		add("log.format must be 'text' or 'json', got %q", m.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
