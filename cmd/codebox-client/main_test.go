package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err)
	require.Contains(t, out.String(), "-api-key")
}

func TestRun_UnreachableServer(t *testing.T) {
	t.Parallel()

	// Port 1 on loopback refuses connections.
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-url", "ws://127.0.0.1:1/ws", "-retries", "2", "-retry-delay", "10ms"})

	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "failed to connect"), "got %v", err)
}
