package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpio-server/internal/types"
)

func startServer(t *testing.T, ctx context.Context, ctrl Controller) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ctrl, false, quietLogger())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, ln)
	}()
	return ln.Addr().String(), done
}

func get(t *testing.T, addr, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + addr + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestServerShutdownRoute(t *testing.T) {
	ctrl, sim := newSimController(t, time.Millisecond)
	addr, done := startServer(t, context.Background(), ctrl)

	status, body := get(t, addr, "/ledOn")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "led on", body)

	status, body = get(t, addr, "/shutdown")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Shutting down", body)

	require.NoError(t, waitRun(t, done))
	assert.False(t, sim.IsSetUp(simLayout.Led1), "pins must be released")

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener must be closed after shutdown")
}

func TestQueuedRequestAfterShutdownRunsNoAction(t *testing.T) {
	ctrl := &fakeController{
		distance: 42,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	addr, done := startServer(t, context.Background(), ctrl)

	var wg sync.WaitGroup
	fire := func(path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get("http://" + addr + path)
			if err != nil {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}

	fire("/distance")
	<-ctrl.entered
	fire("/shutdown")
	time.Sleep(50 * time.Millisecond)
	fire("/ledOn")
	time.Sleep(50 * time.Millisecond)
	close(ctrl.release)

	require.NoError(t, waitRun(t, done))
	wg.Wait()

	// whichever order the queued requests ran in, nothing follows the
	// cleanup done by /shutdown
	require.Contains(t, ctrl.calls, "cleanup")
	assert.Equal(t, "cleanup", ctrl.calls[len(ctrl.calls)-1], "calls: %v", ctrl.calls)
}

func TestServerContextCancel(t *testing.T) {
	ctrl := &fakeController{}
	ctx, cancel := context.WithCancel(context.Background())
	addr, done := startServer(t, ctx, ctrl)

	_, body := get(t, addr, "/led2On")
	assert.Equal(t, "led2 on", body)

	cancel()
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, []types.ServerState{
		types.StateRunning,
		types.StateShuttingDown,
		types.StateStopped,
	}, ctrl.states)
}

func TestServerClosesConnections(t *testing.T) {
	ctrl := &fakeController{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, done := startServer(t, ctx, ctrl)

	resp, err := http.Get("http://" + addr + "/params")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.True(t, resp.Close, "keep-alives must be disabled")

	cancel()
	require.NoError(t, waitRun(t, done))
}

func TestRequestStopIdempotent(t *testing.T) {
	srv := NewServer(&fakeController{}, false, quietLogger())
	srv.RequestStop()
	srv.RequestStop()

	select {
	case <-srv.stop:
	default:
		t.Fatal("stop channel not closed")
	}
}
