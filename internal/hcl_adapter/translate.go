package hcl_adapter

import (
	"errors"
	"time"

	"github.com/specialistvlad/codebox/internal/config"
)

type serverBlock struct {
	Address           *string `hcl:"address,optional"`
	MaxConnections    *int    `hcl:"max_connections,optional"`
	ReadHeaderTimeout *string `hcl:"read_header_timeout,optional"`
	ShutdownTimeout   *string `hcl:"shutdown_timeout,optional"`
	MaxBodyBytes      *int64  `hcl:"max_body_bytes,optional"`
}

type engineBlock struct {
	Kind           *string           `hcl:"kind,optional"`
	Command        *string           `hcl:"command,optional"`
	Args           []string          `hcl:"args,optional"`
	WorkDir        *string           `hcl:"work_dir,optional"`
	Env            map[string]string `hcl:"env,optional"`
	MaxOutputBytes *int              `hcl:"max_output_bytes,optional"`
	MaxDownload    *int64            `hcl:"max_download_bytes,optional"`
}

type dispatchBlock struct {
	Workers     *int    `hcl:"workers,optional"`
	QueueDepth  *int    `hcl:"queue_depth,optional"`
	HTTPTimeout *string `hcl:"http_timeout,optional"`
	WSTimeout   *string `hcl:"ws_timeout,optional"`
	MaxTimeout  *string `hcl:"max_timeout,optional"`
}

type sessionsBlock struct {
	IdleTimeout  *string `hcl:"idle_timeout,optional"`
	ReapInterval *string `hcl:"reap_interval,optional"`
}

type catalogBlock struct {
	Backend   *string `hcl:"backend,optional"`
	RedisURL  *string `hcl:"redis_url,optional"`
	TTL       *string `hcl:"ttl,optional"`
	KeyPrefix *string `hcl:"key_prefix,optional"`
}

type websocketBlock struct {
	ReadLimit    *int64  `hcl:"read_limit,optional"`
	WriteTimeout *string `hcl:"write_timeout,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
	Watch  *bool   `hcl:"watch,optional"`
}

// translate converts the decoded blocks into a config.Patch, reporting every
// malformed duration at once.
func (r *fileRoot) translate() (config.Patch, error) {
	var (
		p    config.Patch
		errs []error
	)
	duration := func(field string, s *string) *time.Duration {
		d, err := config.OptionalDuration(field, s)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	if b := r.Server; b != nil {
		p.ServerAddress = b.Address
		p.ServerMaxConnections = b.MaxConnections
		p.ServerReadHeaderTimeout = duration("server.read_header_timeout", b.ReadHeaderTimeout)
		p.ServerShutdownTimeout = duration("server.shutdown_timeout", b.ShutdownTimeout)
		p.ServerMaxBodyBytes = b.MaxBodyBytes
	}
	if b := r.Engine; b != nil {
		p.EngineKind = b.Kind
		p.EngineCommand = b.Command
		p.EngineArgs = b.Args
		p.EngineWorkDir = b.WorkDir
		p.EngineEnv = b.Env
		p.EngineMaxOutputBytes = b.MaxOutputBytes
		p.EngineMaxDownload = b.MaxDownload
	}
	if b := r.Dispatch; b != nil {
		p.DispatchWorkers = b.Workers
		p.DispatchQueueDepth = b.QueueDepth
		p.DispatchHTTPTimeout = duration("dispatch.http_timeout", b.HTTPTimeout)
		p.DispatchWSTimeout = duration("dispatch.ws_timeout", b.WSTimeout)
		p.DispatchMaxTimeout = duration("dispatch.max_timeout", b.MaxTimeout)
	}
	if b := r.Sessions; b != nil {
		p.SessionsIdleTimeout = duration("sessions.idle_timeout", b.IdleTimeout)
		p.SessionsReapInterval = duration("sessions.reap_interval", b.ReapInterval)
	}
	if b := r.Catalog; b != nil {
		p.CatalogBackend = b.Backend
		p.CatalogRedisURL = b.RedisURL
		p.CatalogTTL = duration("catalog.ttl", b.TTL)
		p.CatalogKeyPrefix = b.KeyPrefix
	}
	if b := r.WebSocket; b != nil {
		p.WebSocketReadLimit = b.ReadLimit
		p.WebSocketWriteTimeout = duration("websocket.write_timeout", b.WriteTimeout)
	}
	if b := r.Log; b != nil {
		p.LogLevel = b.Level
		p.LogFormat = b.Format
		p.LogWatch = b.Watch
	}

	return p, errors.Join(errs...)
}
