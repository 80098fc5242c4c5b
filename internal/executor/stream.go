package executor

import (
	"context"

	language "github.com/hanpama/gqlstream/internal/language"
)

// ResponseStream is a lazy sequence of execution results.
//
// A single goroutine produces results: the next source event is not read
// until the previous result has been received from Results. Results is closed
// when the source is exhausted or the stream is closed.
type ResponseStream struct {
	results chan *ExecutionResult
	cancel  context.CancelFunc
	done    chan struct{}
}

func startStream(ctx context.Context, cancel context.CancelFunc, produce func(ctx context.Context, emit func(*ExecutionResult) bool)) *ResponseStream {
	s := &ResponseStream{
		results: make(chan *ExecutionResult),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.results)
		defer cancel()
		produce(ctx, func(res *ExecutionResult) bool {
			select {
			case s.results <- res:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return s
}

// SingleResultStream returns a stream that yields res once and then ends.
func SingleResultStream(ctx context.Context, res *ExecutionResult) *ResponseStream {
	ctx, cancel := context.WithCancel(ctx)
	return startStream(ctx, cancel, func(_ context.Context, emit func(*ExecutionResult) bool) {
		emit(res)
	})
}

// Results returns the channel of results. It is closed when the stream ends.
func (s *ResponseStream) Results() <-chan *ExecutionResult { return s.results }

// Done is closed once the producing goroutine has exited.
func (s *ResponseStream) Done() <-chan struct{} { return s.done }

// Close cancels the stream and waits for the producing goroutine to exit.
// It is safe to call more than once.
func (s *ResponseStream) Close() {
	s.cancel()
	<-s.done
}

// Subscribe runs a subscription operation. The single root field is turned
// into a source event stream with Runtime.SubscribeField; each source event
// is then used as that field's value for one execution of the selection set.
//
// Failures before the source exists (variables, arguments, SubscribeField)
// yield a stream with one error result.
func (e *Executor) Subscribe(ctx context.Context, op *language.OperationDefinition, variables map[string]any) *ResponseStream {
	prepared, res := e.prepare(op, variables)
	if res != nil {
		return SingleResultStream(ctx, res)
	}
	if op.Operation != language.Subscription {
		return SingleResultStream(ctx, ErrorResult("%s operations are not subscriptions", op.Operation))
	}

	x := e.newExecution(prepared)
	groups := x.collectFields(prepared.root, op.SelectionSet)
	if len(groups) != 1 || groups[0].fields[0].Definition == nil {
		return SingleResultStream(ctx, ErrorResult("subscription operations must select exactly one field of %s", prepared.root.Name))
	}
	root := groups[0]
	field := root.fields[0]
	path := Path{root.key}

	args, err := x.arguments(field)
	if err != nil {
		x.fail(path, field, err)
		return SingleResultStream(ctx, x.result(nil))
	}
	streamCtx, cancel := context.WithCancel(ctx)
	source, err := e.runtime.SubscribeField(streamCtx, prepared.root.Name, field.Name, args)
	if err != nil {
		cancel()
		x.fail(path, field, err)
		return SingleResultStream(ctx, x.result(nil))
	}

	return startStream(streamCtx, cancel, func(ctx context.Context, emit func(*ExecutionResult) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case value, ok := <-source:
				if !ok {
					return
				}
				if !emit(e.event(ctx, prepared, root, value)) {
					return
				}
			}
		}
	})
}

// event executes the subscription selection set for one source event.
func (e *Executor) event(ctx context.Context, op *operation, root *fieldGroup, value any) *ExecutionResult {
	x := e.newExecution(op)
	v, ok := x.completeValue(ctx, root.fields[0].Definition.Type, root.fields, value, Path{root.key})
	if !ok && root.nonNull() {
		return x.result(nil)
	}
	return x.result(map[string]any{root.key: v})
}
