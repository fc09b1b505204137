package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/codebox/internal/session"
	"github.com/specialistvlad/codebox/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutListDelete(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := context.Background()
	m := NewMemory()
	base := time.Unix(1_700_000_000, 0).UTC()
	older := Entry{Digest: "bbb", CreatedAt: base, LastUsedAt: base}
	newer := Entry{Digest: "aaa", CreatedAt: base.Add(time.Minute), LastUsedAt: base.Add(time.Minute), Executions: 3}

	// --- Act ---
	require.NoError(t, m.Put(ctx, newer))
	require.NoError(t, m.Put(ctx, older))
	listed, err := m.List(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "bbb"))
	require.NoError(t, m.Delete(ctx, "missing"))
	after, err := m.List(ctx)
	require.NoError(t, err)

	// --- Assert ---
	if diff := cmp.Diff([]Entry{older, newer}, listed); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Entry{newer}, after)
}

func TestObserver_TracksRegistryLifecycle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := context.Background()
	mem := NewMemory()
	obs := NewObserver(ctx, mem)
	reg := session.NewRegistry((&testutil.FakeFactory{}).Factory(), session.WithObserver(obs))

	// --- Act ---
	a, err := reg.GetOrCreate(ctx, "key-a")
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, "key-b")
	require.NoError(t, err)
	reg.Touch(ctx, a)
	reg.Touch(ctx, a)
	require.NoError(t, reg.Remove(ctx, "key-b"))
	obs.Close()

	// --- Assert ---
	entries, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, session.Digest("key-a"), entries[0].Digest)
	assert.Equal(t, int64(2), entries[0].Executions)
	assert.NotContains(t, entries[0].Digest, "key-a")
}

func TestObserver_IgnoresEventsAfterClose(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	obs := NewObserver(context.Background(), mem)
	obs.Close()

	assert.NotPanics(t, func() {
		obs.SessionCreated(context.Background(), session.Info{Digest: "x"})
	})
	entries, err := mem.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeEntry(t *testing.T) {
	t.Parallel()

	e, err := decodeEntry(`{"digest":"abc","created_at":"2024-01-02T03:04:05Z","last_used_at":"2024-01-02T03:05:05Z","executions":4,"busy":true}`)

	require.NoError(t, err)
	assert.Equal(t, "abc", e.Digest)
	assert.Equal(t, int64(4), e.Executions)
	assert.True(t, e.Busy)
	assert.Equal(t, time.Minute, e.LastUsedAt.Sub(e.CreatedAt))

	_, err = decodeEntry("not json")
	require.Error(t, err)
}

// TestRedis_RoundTrip runs against a real server when CODEBOX_TEST_REDIS_URL is set.
func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("CODEBOX_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CODEBOX_TEST_REDIS_URL not set")
	}

	// --- Arrange ---
	ctx := context.Background()
	prefix := "codebox:test:" + t.Name() + ":"
	r, err := NewRedis(ctx, url, prefix, time.Minute)
	require.NoError(t, err)
	defer r.Close()
	now := time.Now().UTC().Truncate(time.Second)
	entry := Entry{Digest: "d1", CreatedAt: now, LastUsedAt: now, Executions: 1}

	// --- Act ---
	require.NoError(t, r.Put(ctx, entry))
	listed, err := r.List(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "d1"))
	after, err := r.List(ctx)
	require.NoError(t, err)

	// --- Assert ---
	require.Len(t, listed, 1)
	assert.Equal(t, "d1", listed[0].Digest)
	assert.True(t, listed[0].CreatedAt.Equal(now))
	assert.Empty(t, after)
}

func TestNewRedis_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedis(context.Background(), "not-a-redis-url", "", 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}
