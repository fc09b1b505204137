package catalog

import (
	"context"
	"sort"
	"time"
)

// Entry is the catalog record of one session.
type Entry struct {
	Digest     string    `json:"digest"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Executions int64     `json:"executions"`
	Busy       bool      `json:"busy"`
}

// Catalog stores session entries.
type Catalog interface {
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, digest string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Digest < entries[j].Digest
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
