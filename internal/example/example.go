// Package example holds the demo schema served by gqlstream.
package example

import (
	"context"
	_ "embed"
	"log/slog"
	"time"

	resolver "github.com/hanpama/gqlstream/internal/resolver"
)

//go:embed schema.graphql
var SDL string

const (
	FirstName  = "Matvei"
	SecondName = "Golubev"
	Age        = 28
)

// Register installs the resolvers of the demo schema on r. interval is the
// tick period of Subscription.interval.
func Register(r *resolver.Runtime, interval time.Duration) *resolver.Runtime {
	return r.
		Field("Query", "firstName", constant(FirstName)).
		Field("Query", "secondName", constant(SecondName)).
		Field("Query", "age", constant(Age)).
		Subscription("Subscription", "interval", func(ctx context.Context, args map[string]any) (<-chan any, error) {
			n, _ := args["n"].(int)
			return Interval(ctx, n, interval), nil
		})
}

func constant(v any) resolver.FieldFunc {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

// Interval sends n, 2n, 3n, ... on the returned channel, one value per period,
// until ctx is done. The channel is closed on return.
func Interval(ctx context.Context, n int, period time.Duration) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		value := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			value += n
			select {
			case out <- value:
				slog.DebugContext(ctx, "interval sent value", "value", value)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
