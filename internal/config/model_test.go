package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestResolve_LayersPatchesInOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	file := Patch{
		ServerAddress:   Ptr(":9000"),
		DispatchWorkers: Ptr(4),
		EngineEnv:       map[string]string{"A": "1", "B": "2"},
		LogLevel:        Ptr("debug"),
	}
	flags := Patch{
		DispatchWorkers: Ptr(16),
		EngineEnv:       map[string]string{"B": "3"},
	}

	// --- Act ---
	m, err := Resolve(file, flags)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ":9000", m.Server.Address)
	assert.Equal(t, 16, m.Dispatch.Workers)
	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, m.Engine.Env)
	assert.Equal(t, "debug", m.Log.Level)
	assert.Equal(t, 30*time.Second, m.Dispatch.WSTimeout, "untouched fields keep their defaults")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	m := Default()
	m.Dispatch.Workers = 0
	m.Catalog.Backend = "redis"
	m.Log.Format = "xml"

	err := m.Validate()

	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "dispatch.workers must be at least 1")
	assert.Contains(t, err.Error(), "catalog.redis_url is required")
	assert.Contains(t, err.Error(), `log.format must be 'text' or 'json', got "xml"`)
}

func TestValidate_MaxTimeoutBelowDefault(t *testing.T) {
	t.Parallel()

	m := Default()
	m.Dispatch.MaxTimeout = 5 * time.Second

	require.ErrorIs(t, m.Validate(), ErrInvalid)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30", want: 30 * time.Second},
		{in: "0", want: 0},
		{in: "1m30s", want: 90 * time.Second},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
