// Package otel exports traces of HTTP requests, GraphQL operations and
// subscription streams, built from eventbus events.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	reqid "github.com/hanpama/gqlstream/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup exports spans over OTLP/gRPC to endpoint and subscribes the span
// builder to the eventbus. With an empty endpoint nothing is set up. The
// returned func flushes the exporter and unsubscribes.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(tp.Tracer("gqlstream"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// spanKey identifies an open span. HTTP and operation spans are keyed by
// request id, subscription spans by subscription id.
type spanKey struct {
	kind string
	id   string
}

type spans struct {
	tracer trace.Tracer
	open   sync.Map // spanKey -> trace.Span
}

// start opens a span under the open span of parent, if any.
func (s *spans) start(ctx context.Context, key, parent spanKey, name string, attrs ...attribute.KeyValue) {
	if v, ok := s.open.Load(parent); ok {
		ctx = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	s.open.Store(key, span)
}

func (s *spans) end(key spanKey, attrs ...attribute.KeyValue) trace.Span {
	v, ok := s.open.LoadAndDelete(key)
	if !ok {
		return nil
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	return span
}

// Subscribe turns eventbus events into spans of tracer:
//
//	http.request
//	├── graphql.operation
//	└── graphql.subscription (one "frame" event per delivered result)
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &spans{tracer: tracer}
	request := func(ctx context.Context, kind string) spanKey {
		rid, _ := reqid.FromContext(ctx)
		return spanKey{kind: kind, id: rid}
	}

	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			s.start(ctx, request(ctx, "http"), spanKey{}, "http.request",
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			if span := s.end(request(ctx, "http"), semconv.HTTPStatusCodeKey.Int(e.Status)); span != nil {
				span.End()
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			s.start(ctx, request(ctx, "graphql"), request(ctx, "http"), "graphql.operation",
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			if span := s.end(request(ctx, "graphql"), attribute.Int("graphql.error_count", len(e.Errors))); span != nil {
				span.End()
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			s.start(ctx, spanKey{kind: "subscription", id: e.ID}, request(ctx, "http"), "graphql.subscription",
				attribute.String("graphql.subscription.id", e.ID),
				attribute.String("graphql.subscription.transport", e.Transport),
				attribute.String("graphql.operation.name", e.OperationName))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionFrame) {
			if v, ok := s.open.Load(spanKey{kind: "subscription", id: e.ID}); ok {
				v.(trace.Span).AddEvent("frame")
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionFinish) {
			span := s.end(spanKey{kind: "subscription", id: e.ID},
				attribute.String("graphql.subscription.state", e.State),
				attribute.Int("graphql.subscription.frames", e.Frames))
			if span == nil {
				return
			}
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
