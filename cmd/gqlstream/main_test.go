package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	config "github.com/hanpama/gqlstream/internal/config"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.Example.Interval = 10 * time.Millisecond
	return &cfg
}

// startServer runs serve and returns its base URL and result channel.
func startServer(t *testing.T, ctx context.Context, cfg *config.Config) (string, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, out) }()

	var base string
	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if rest, ok := strings.CutPrefix(line, "Playground: "); ok {
				base = strings.TrimSuffix(rest, "/playground")
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return base, done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func TestServeQueryAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base, done := startServer(t, ctx, testConfig())

	resp, err := http.Get(base + "/?query={firstName}")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.JSONEq(t, `{"data":{"firstName":"Matvei"}}`, string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "gqlstream_http_requests_total")

	cancel()
	require.NoError(t, waitServe(t, done))
}

func TestServeExitsCleanlyOnSIGTERM(t *testing.T) {
	base, done := startServer(t, context.Background(), testConfig())

	out := &syncBuffer{}
	lctx, lcancel := context.WithCancel(context.Background())
	defer lcancel()
	listened := make(chan error, 1)
	go func() { listened <- listen(lctx, base, "{interval(n: 2)}", out) }()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `received: message: {"data":{"interval":4}}`)
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	require.NoError(t, waitServe(t, done))

	// the stream ended with the server
	select {
	case err := <-listened:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return after shutdown")
	}
	require.True(t, strings.HasPrefix(out.String(), `received: message: {"data":{"interval":2}}`+"\n"))
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"schema"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "type Query")
	require.Contains(t, out.String(), "interval(n: Int = 1): Int!")
}
