package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsFromEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	m := New()
	unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	eventbus.Publish(ctx, events.HTTPFinish{Request: httptest.NewRequest("GET", "/", nil), Status: 200, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.HTTPFinish{Request: httptest.NewRequest("GET", "/nope/1", nil), Status: 404})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query"})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("x")}})

	eventbus.Publish(ctx, events.SubscriptionStart{ID: "a", Transport: events.TransportSSE})
	eventbus.Publish(ctx, events.SubscriptionStart{ID: "b", Transport: events.TransportSSE})
	eventbus.Publish(ctx, events.SubscriptionFrame{ID: "a", Transport: events.TransportSSE})
	eventbus.Publish(ctx, events.SubscriptionFrame{ID: "a", Transport: events.TransportSSE})
	eventbus.Publish(ctx, events.SubscriptionFinish{ID: "a", Transport: events.TransportSSE, State: "drained", Frames: 2})

	out := scrape(t, m)
	for _, want := range []string{
		`gqlstream_http_requests_total{method="GET",path="/",status="200"} 1`,
		`gqlstream_http_requests_total{method="GET",path="other",status="404"} 1`,
		`gqlstream_graphql_operations_total{status="ok",type="query"} 1`,
		`gqlstream_graphql_operations_total{status="error",type="query"} 1`,
		`gqlstream_subscriptions_active{transport="sse"} 1`,
		`gqlstream_subscription_frames_total{transport="sse"} 2`,
		`gqlstream_subscriptions_finished_total{state="drained",transport="sse"} 1`,
		`go_goroutines`,
	} {
		require.Contains(t, out, want)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	a, b := New(), New()
	unsubscribe := a.Subscribe()
	defer unsubscribe()

	eventbus.Publish(context.Background(), events.SubscriptionFrame{Transport: events.TransportWebSocket})
	require.Contains(t, scrape(t, a), `gqlstream_subscription_frames_total{transport="ws"} 1`)
	require.NotContains(t, scrape(t, b), `gqlstream_subscription_frames_total{transport="ws"}`)
}
