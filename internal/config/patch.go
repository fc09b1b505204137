package config

import "time"

// Patch holds optional overrides. Nil fields are left untouched by Apply.
type Patch struct {
	ServerAddress           *string
	ServerMaxConnections    *int
	ServerReadHeaderTimeout *time.Duration
	ServerShutdownTimeout   *time.Duration
	ServerMaxBodyBytes      *int64

	EngineKind           *string
	EngineCommand        *string
	EngineArgs           []string
	EngineWorkDir        *string
	EngineEnv            map[string]string
	EngineMaxOutputBytes *int
	EngineMaxDownload    *int64

	DispatchWorkers     *int
	DispatchQueueDepth  *int
	DispatchHTTPTimeout *time.Duration
	DispatchWSTimeout   *time.Duration
	DispatchMaxTimeout  *time.Duration

	SessionsIdleTimeout  *time.Duration
	SessionsReapInterval *time.Duration

	CatalogBackend   *string
	CatalogRedisURL  *string
	CatalogTTL       *time.Duration
	CatalogKeyPrefix *string

	WebSocketReadLimit    *int64
	WebSocketWriteTimeout *time.Duration

	LogLevel  *string
	LogFormat *string
	LogWatch  *bool
}

// Apply copies every set field of p onto m. EngineEnv entries are merged
// into the existing map.
func (m *Model) Apply(p Patch) {
	set(&m.Server.Address, p.ServerAddress)
	set(&m.Server.MaxConnections, p.ServerMaxConnections)
	set(&m.Server.ReadHeaderTimeout, p.ServerReadHeaderTimeout)
	set(&m.Server.ShutdownTimeout, p.ServerShutdownTimeout)
	set(&m.Server.MaxBodyBytes, p.ServerMaxBodyBytes)

	set(&m.Engine.Kind, p.EngineKind)
	set(&m.Engine.Command, p.EngineCommand)
	if p.EngineArgs != nil {
		m.Engine.Args = append([]string(nil), p.EngineArgs...)
	}
	set(&m.Engine.WorkDir, p.EngineWorkDir)
	if len(p.EngineEnv) > 0 {
		if m.Engine.Env == nil {
			m.Engine.Env = make(map[string]string, len(p.EngineEnv))
		}
		for k, v := range p.EngineEnv {
			m.Engine.Env[k] = v
		}
	}
	set(&m.Engine.MaxOutputBytes, p.EngineMaxOutputBytes)
	set(&m.Engine.MaxDownloadBytes, p.EngineMaxDownload)

	set(&m.Dispatch.Workers, p.DispatchWorkers)
	set(&m.Dispatch.QueueDepth, p.DispatchQueueDepth)
	set(&m.Dispatch.HTTPTimeout, p.DispatchHTTPTimeout)
	set(&m.Dispatch.WSTimeout, p.DispatchWSTimeout)
	set(&m.Dispatch.MaxTimeout, p.DispatchMaxTimeout)

	set(&m.Sessions.IdleTimeout, p.SessionsIdleTimeout)
	set(&m.Sessions.ReapInterval, p.SessionsReapInterval)

	set(&m.Catalog.Backend, p.CatalogBackend)
	set(&m.Catalog.RedisURL, p.CatalogRedisURL)
	set(&m.Catalog.TTL, p.CatalogTTL)
	set(&m.Catalog.KeyPrefix, p.CatalogKeyPrefix)

	set(&m.WebSocket.ReadLimit, p.WebSocketReadLimit)
	set(&m.WebSocket.WriteTimeout, p.WebSocketWriteTimeout)

	set(&m.Log.Level, p.LogLevel)
	set(&m.Log.Format, p.LogFormat)
	set(&m.Log.Watch, p.LogWatch)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }
