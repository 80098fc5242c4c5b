// Package sse delivers a stream of GraphQL results as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	executor "github.com/hanpama/gqlstream/internal/executor"
	shutdown "github.com/hanpama/gqlstream/internal/shutdown"
)

// ErrSerialization wraps failures to encode a result into a frame.
var ErrSerialization = errors.New("sse: cannot serialize result")

// State is the lifecycle state of an Adapter.
type State int

const (
	Running State = iota
	// Drained: the result stream ended.
	Drained
	// Aborted: shutdown fired, the client went away or a write failed.
	Aborted
	// Failed: a result could not be serialized.
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Drained:
		return "drained"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stream is a lazy sequence of results. *executor.ResponseStream implements
// it.
type Stream interface {
	Results() <-chan *executor.ExecutionResult
	// Close stops the sequence and waits until it has stopped.
	Close()
}

// Adapter writes each result of a Stream as one frame until the stream ends,
// shutdown fires, or the request context is done.
type Adapter struct {
	id        string
	stream    Stream
	waiter    *shutdown.Waiter
	keepAlive time.Duration
	state     State
	frames    int
}

type Option func(*Adapter)

// WithKeepAlive writes a comment frame after every interval without results.
// Zero disables keep-alive comments.
func WithKeepAlive(interval time.Duration) Option {
	return func(a *Adapter) { a.keepAlive = interval }
}

// WithID sets the subscription id used in events. A random id is used by
// default.
func WithID(id string) Option { return func(a *Adapter) { a.id = id } }

// NewAdapter takes ownership of stream and registers a shutdown waiter on b.
// Run must be called exactly once to release both.
func NewAdapter(stream Stream, b *shutdown.Broadcaster, opts ...Option) *Adapter {
	a := &Adapter{id: uuid.NewString(), stream: stream, waiter: b.Register()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the subscription id.
func (a *Adapter) ID() string { return a.id }

// State returns the current state.
func (a *Adapter) State() State { return a.state }

// Frames returns the number of message frames written.
func (a *Adapter) Frames() int { return a.frames }

// Run pulls results one at a time and writes them to w in order. It returns
// the terminal state; the error is non-nil for Failed (wrapping
// ErrSerialization) and for write failures. When Run returns, the stream is
// closed and the shutdown waiter released.
func (a *Adapter) Run(ctx context.Context, w *Writer) (State, error) {
	start := time.Now()
	defer func() {
		a.stream.Close()
		a.waiter.Release()
	}()

	var tick <-chan time.Time
	if a.keepAlive > 0 {
		t := time.NewTicker(a.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	state, err := a.loop(ctx, w, tick)
	a.state = state
	eventbus.Publish(ctx, events.SubscriptionFinish{
		ID:        a.id,
		Transport: events.TransportSSE,
		State:     state.String(),
		Frames:    a.frames,
		Err:       err,
		Duration:  time.Since(start),
	})
	return state, err
}

func (a *Adapter) loop(ctx context.Context, w *Writer, tick <-chan time.Time) (State, error) {
	results := a.stream.Results()
	for {
		select {
		case <-a.waiter.Done():
			return Aborted, nil
		case <-ctx.Done():
			return Aborted, nil
		case <-tick:
			if err := w.Comment("keep-alive"); err != nil {
				return Aborted, err
			}
		case res, ok := <-results:
			if !ok {
				return Drained, nil
			}
			// shutdown may have fired while this result was computed
			select {
			case <-a.waiter.Done():
				return Aborted, nil
			default:
			}
			payload, err := json.Marshal(res)
			if err != nil {
				return Failed, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			if err := w.Message(payload); err != nil {
				return Aborted, err
			}
			a.frames++
			eventbus.Publish(ctx, events.SubscriptionFrame{ID: a.id, Transport: events.TransportSSE})
		}
	}
}
