package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/session"
)

const (
	observerBuffer  = 1024
	observerTimeout = 2 * time.Second
)

type event struct {
	entry  Entry
	remove bool
	reason session.Reason
}

// Observer feeds registry lifecycle events into a Catalog from a single
// background goroutine, so slow backends never stall requests. Events are
// applied in order; when the buffer is full new events are dropped.
type Observer struct {
	catalog Catalog
	logger  *slog.Logger
	events  chan event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ session.Observer = (*Observer)(nil)

// NewObserver starts an Observer writing to c.
func NewObserver(ctx context.Context, c Catalog) *Observer {
	o := &Observer{
		catalog: c,
		logger:  ctxlog.FromContext(ctx).With("component", "catalog"),
		events:  make(chan event, observerBuffer),
		done:    make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Observer) SessionCreated(_ context.Context, info session.Info) {
	o.push(event{entry: toEntry(info)})
}

func (o *Observer) SessionUsed(_ context.Context, info session.Info) {
	o.push(event{entry: toEntry(info)})
}

func (o *Observer) SessionRemoved(_ context.Context, info session.Info, reason session.Reason) {
	o.push(event{entry: toEntry(info), remove: true, reason: reason})
}

func (o *Observer) push(ev event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("Catalog event dropped, buffer full.", "digest", ev.entry.Digest)
	}
}

func (o *Observer) loop() {
	defer close(o.done)
	for ev := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		var err error
		if ev.remove {
			err = o.catalog.Delete(ctx, ev.entry.Digest)
		} else {
			err = o.catalog.Put(ctx, ev.entry)
		}
		cancel()
		if err != nil {
			o.logger.Warn("Catalog update failed.", "digest", ev.entry.Digest, "remove", ev.remove, "error", err)
			continue
		}
		if ev.remove {
			o.logger.Debug("Catalog entry removed.", "digest", ev.entry.Digest, "reason", ev.reason)
		}
	}
}

// Close stops accepting events and waits until queued ones are applied.
func (o *Observer) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.mu.Unlock()
	<-o.done
}

func toEntry(info session.Info) Entry {
	return Entry{
		Digest:     info.Digest,
		CreatedAt:  info.CreatedAt,
		LastUsedAt: info.LastUsedAt,
		Executions: info.Executions,
		Busy:       info.Busy,
	}
}
