package e2e

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort reserves an ephemeral port and releases it for the server under test.
func freePort(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

// TestSSEServerStartStop verifies that the SSE transport starts, accepts
// connections, and shuts down gracefully on context cancellation.
func TestSSEServerStartStop(t *testing.T) {
	env := newTestEnv(t)

	addr := freePort(t)
	baseURL := "http://" + addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- env.server.ServeSSE(ctx, addr, baseURL)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/sse")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 3*time.Second, 50*time.Millisecond, "SSE server did not start")

	cancel()

	select {
	case srvErr := <-errCh:
		if srvErr != nil {
			assert.ErrorIs(t, srvErr, http.ErrServerClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

// TestSSELoadAndQueryWhileServing loads and queries a tree over JSON-RPC
// while the SSE transport is live.
func TestSSELoadAndQueryWhileServing(t *testing.T) {
	env := newTestEnv(t)

	addr := freePort(t)
	baseURL := "http://" + addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = env.server.ServeSSE(ctx, addr, baseURL)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/sse")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 3*time.Second, 50*time.Millisecond)

	uid := env.loadTree(t, map[string]any{"text": advanceXML})

	result := env.callTool(t, "arbor.query", map[string]any{"resource": "trees"})
	require.False(t, result.IsError, extractText(t, result))

	trees := extractQueryResult[map[string]any](t, result, "trees")
	require.Len(t, trees, 1)
	assert.Equal(t, uid, trees[0]["uid"])
	assert.Equal(t, "March", trees[0]["name"])
}

// TestSSEPortInUse verifies that binding an occupied port fails with a
// clear error.
func TestSSEPortInUse(t *testing.T) {
	env := newTestEnv(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr := listener.Addr().String()
	baseURL := "http://" + addr

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = env.server.ServeSSE(ctx, addr, baseURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}
