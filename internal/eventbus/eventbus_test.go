package eventbus

import (
	"context"
	"testing"
)

type ping struct{ n int }
type pong struct{}

func TestPublishSubscribe(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []int
	unsubscribe := Subscribe(func(_ context.Context, e ping) { got = append(got, e.n) })
	Subscribe(func(context.Context, pong) { t.Fatalf("pong handler called for ping") })

	Publish(context.Background(), ping{1})
	Publish(context.Background(), ping{2})
	unsubscribe()
	Publish(context.Background(), ping{3})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestPublishWithoutBus(t *testing.T) {
	Use(nil)
	called := false
	Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	if called {
		t.Fatalf("handler called without a bus")
	}
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	Use(New())
	defer Use(nil)

	var a, b int
	unsubA := Subscribe(func(context.Context, ping) { a++ })
	Subscribe(func(context.Context, ping) { b++ })

	unsubA()
	unsubA()
	Publish(context.Background(), ping{})

	if a != 0 || b != 1 {
		t.Fatalf("a=%d b=%d, want a=0 b=1", a, b)
	}
}
