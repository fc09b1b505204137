// Package yaml_adapter loads codebox configuration written in YAML. Keys
// mirror the HCL blocks, and ${VAR} references are expanded from the
// environment before parsing.
package yaml_adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML implementation of config.Loader.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a YAML loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

var _ config.Loader = (*Loader)(nil)

type document struct {
	Server *struct {
		Address           *string `yaml:"address"`
		MaxConnections    *int    `yaml:"max_connections"`
		ReadHeaderTimeout *string `yaml:"read_header_timeout"`
		ShutdownTimeout   *string `yaml:"shutdown_timeout"`
		MaxBodyBytes      *int64  `yaml:"max_body_bytes"`
	} `yaml:"server"`
	Engine *struct {
		Kind           *string           `yaml:"kind"`
		Command        *string           `yaml:"command"`
		Args           []string          `yaml:"args"`
		WorkDir        *string           `yaml:"work_dir"`
		Env            map[string]string `yaml:"env"`
		MaxOutputBytes *int              `yaml:"max_output_bytes"`
		MaxDownload    *int64            `yaml:"max_download_bytes"`
	} `yaml:"engine"`
	Dispatch *struct {
		Workers     *int    `yaml:"workers"`
		QueueDepth  *int    `yaml:"queue_depth"`
		HTTPTimeout *string `yaml:"http_timeout"`
		WSTimeout   *string `yaml:"ws_timeout"`
		MaxTimeout  *string `yaml:"max_timeout"`
	} `yaml:"dispatch"`
	Sessions *struct {
		IdleTimeout  *string `yaml:"idle_timeout"`
		ReapInterval *string `yaml:"reap_interval"`
	} `yaml:"sessions"`
	Catalog *struct {
		Backend   *string `yaml:"backend"`
		RedisURL  *string `yaml:"redis_url"`
		TTL       *string `yaml:"ttl"`
		KeyPrefix *string `yaml:"key_prefix"`
	} `yaml:"catalog"`
	WebSocket *struct {
		ReadLimit    *int64  `yaml:"read_limit"`
		WriteTimeout *string `yaml:"write_timeout"`
	} `yaml:"websocket"`
	Log *struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
		Watch  *bool   `yaml:"watch"`
	} `yaml:"log"`
}

// Load reads the YAML file at path.
func (l *Loader) Load(ctx context.Context, path string) (config.Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Patch{}, fmt.Errorf("error reading config file: %w", err)
	}
	expanded := os.Expand(string(data), func(name string) string {
		v, _ := l.lookupEnv(name)
		return v
	})

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return config.Patch{}, fmt.Errorf("error parsing YAML %s: %w", path, err)
	}

	patch, err := doc.translate()
	if err != nil {
		return config.Patch{}, fmt.Errorf("invalid YAML configuration %s: %w", path, err)
	}
	ctxlog.FromContext(ctx).Debug("YAML loading complete.", "path", path)
	return patch, nil
}

func (d *document) translate() (config.Patch, error) {
	var (
		p    config.Patch
		errs []error
	)
	duration := func(field string, s *string) *time.Duration {
		v, err := config.OptionalDuration(field, s)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	if s := d.Server; s != nil {
		p.ServerAddress = s.Address
		p.ServerMaxConnections = s.MaxConnections
		p.ServerReadHeaderTimeout = duration("server.read_header_timeout", s.ReadHeaderTimeout)
		p.ServerShutdownTimeout = duration("server.shutdown_timeout", s.ShutdownTimeout)
		p.ServerMaxBodyBytes = s.MaxBodyBytes
	}
	if e := d.Engine; e != nil {
		p.EngineKind = e.Kind
		p.EngineCommand = e.Command
		p.EngineArgs = e.Args
		p.EngineWorkDir = e.WorkDir
		p.EngineEnv = e.Env
		p.EngineMaxOutputBytes = e.MaxOutputBytes
		p.EngineMaxDownload = e.MaxDownload
	}
	if dp := d.Dispatch; dp != nil {
		p.DispatchWorkers = dp.Workers
		p.DispatchQueueDepth = dp.QueueDepth
		p.DispatchHTTPTimeout = duration("dispatch.http_timeout", dp.HTTPTimeout)
		p.DispatchWSTimeout = duration("dispatch.ws_timeout", dp.WSTimeout)
		p.DispatchMaxTimeout = duration("dispatch.max_timeout", dp.MaxTimeout)
	}
	if s := d.Sessions; s != nil {
		p.SessionsIdleTimeout = duration("sessions.idle_timeout", s.IdleTimeout)
		p.SessionsReapInterval = duration("sessions.reap_interval", s.ReapInterval)
	}
	if c := d.Catalog; c != nil {
		p.CatalogBackend = c.Backend
		p.CatalogRedisURL = c.RedisURL
		p.CatalogTTL = duration("catalog.ttl", c.TTL)
		p.CatalogKeyPrefix = c.KeyPrefix
	}
	if w := d.WebSocket; w != nil {
		p.WebSocketReadLimit = w.ReadLimit
		p.WebSocketWriteTimeout = duration("websocket.write_timeout", w.WriteTimeout)
	}
	if lg := d.Log; lg != nil {
		p.LogLevel = lg.Level
		p.LogFormat = lg.Format
		p.LogWatch = lg.Watch
	}
	return p, errors.Join(errs...)
}
