package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	reqid "github.com/hanpama/gqlstream/internal/reqid"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	require.Error(t, err)
}

func newJSONLogger(t *testing.T, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(Config{Level: level, Format: "json", Output: &buf})
	require.NoError(t, err)
	return logger, &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSubscribeLogsSubscriptionLifecycle(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	logger, buf := newJSONLogger(t, "info")
	unsubscribe := Subscribe(logger)
	defer unsubscribe()

	ctx, _ := reqid.WithID(context.Background(), "rid-1")
	eventbus.Publish(ctx, events.SubscriptionStart{ID: "s1", Transport: events.TransportSSE})
	eventbus.Publish(ctx, events.SubscriptionFinish{ID: "s1", Transport: events.TransportSSE, State: "drained", Frames: 3})
	eventbus.Publish(ctx, events.SubscriptionFinish{ID: "s2", Transport: events.TransportSSE, State: "failed", Err: errors.New("boom")})

	got := lines(t, buf)
	require.Len(t, got, 3)
	require.Equal(t, "subscription started", got[0]["msg"])
	require.Equal(t, "rid-1", got[0]["request_id"])
	require.Equal(t, "subscription finished", got[1]["msg"])
	require.Equal(t, "INFO", got[1]["level"])
	require.Equal(t, "drained", got[1]["state"])
	require.EqualValues(t, 3, got[1]["frames"])
	require.Equal(t, "ERROR", got[2]["level"])
	require.Equal(t, "boom", got[2]["error"])
}

func TestSubscribeLogsHTTPAndRespectsLevel(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	logger, buf := newJSONLogger(t, "info")
	unsubscribe := Subscribe(logger)

	r := httptest.NewRequest("GET", "/healthz", nil)
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: r, Status: 200, Duration: time.Millisecond})
	// debug level, filtered out
	eventbus.Publish(context.Background(), events.GraphQLFinish{OperationType: "query"})

	unsubscribe()
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: r, Status: 200})

	got := lines(t, buf)
	require.Len(t, got, 1)
	require.Equal(t, "http request", got[0]["msg"])
	require.Equal(t, "/healthz", got[0]["path"])
	require.EqualValues(t, 200, got[0]["status"])
}
