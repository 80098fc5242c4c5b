// Package engine turns GraphQL requests into execution results. It parses and
// validates the request document against the schema and hands it to the
// executor, either for a single result or for a stream of results.
package engine

import (
	"context"
	"fmt"
	"time"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	executor "github.com/hanpama/gqlstream/internal/executor"
	introspection "github.com/hanpama/gqlstream/internal/introspection"
	language "github.com/hanpama/gqlstream/internal/language"
)

// Request is a normalized GraphQL request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Engine executes requests against one schema.
type Engine struct {
	schema        *language.Schema
	exec          *executor.Executor
	introspection bool
	parallelism   int
}

type Option func(*Engine)

// WithIntrospection enables or disables the __schema and __type root fields.
// Introspection is enabled by default.
func WithIntrospection(enable bool) Option { return func(e *Engine) { e.introspection = enable } }

// WithParallelism bounds the resolver calls in flight across all requests.
// 0 means unbounded.
func WithParallelism(n int) Option { return func(e *Engine) { e.parallelism = n } }

// New loads sdl and returns an Engine resolving fields through runtime.
// Interfaces and unions are not supported.
func New(sdl string, runtime executor.Runtime, opts ...Option) (*Engine, error) {
	s, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	for _, def := range s.Types {
		if def.Kind == language.Interface || def.Kind == language.Union {
			return nil, fmt.Errorf("load schema: %s %s: abstract types are not supported", def.Kind, def.Name)
		}
	}
	e := &Engine{schema: s, introspection: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.introspection {
		runtime = introspection.Wrap(runtime, s)
	}
	e.exec = executor.New(s, runtime, executor.WithParallelism(e.parallelism))
	return e, nil
}

// SDL returns the schema in SDL form.
func (e *Engine) SDL() string { return language.FormatSchema(e.schema) }

// Execute runs a query or mutation and returns its single result. Errors in
// the request (syntax, validation, variables) are reported inside the result.
// Subscription operations are rejected; use ExecuteStream.
func (e *Engine) Execute(ctx context.Context, req Request) *executor.ExecutionResult {
	op, res := e.prepare(req)
	if res != nil {
		return res
	}
	if op.Operation == language.Subscription {
		return executor.ErrorResult("subscriptions must be requested as a stream")
	}
	return e.execute(ctx, req, op)
}

// ExecuteStream runs any operation and returns its results as a stream. A
// subscription yields one result per source event; any other operation, or a
// request that fails before the subscription starts, yields exactly one
// result. The caller must Close the stream.
func (e *Engine) ExecuteStream(ctx context.Context, req Request) *executor.ResponseStream {
	op, res := e.prepare(req)
	if res != nil {
		return executor.SingleResultStream(ctx, res)
	}
	if op.Operation != language.Subscription {
		return executor.SingleResultStream(ctx, e.execute(ctx, req, op))
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: string(op.Operation)})
	stream := e.exec.Subscribe(ctx, op, req.Variables)
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: string(op.Operation),
		Duration:      time.Since(start),
	})
	return stream
}

func (e *Engine) prepare(req Request) (*language.OperationDefinition, *executor.ExecutionResult) {
	doc, errs := language.ParseAndValidate(e.schema, req.Query)
	if len(errs) > 0 {
		return nil, fromErrorList(errs)
	}
	op := selectOperation(doc, req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return nil, executor.ErrorResult("operation name is required when the document has several operations")
		}
		return nil, executor.ErrorResult("unknown operation named %q", req.OperationName)
	}
	if !e.introspection {
		for _, sel := range op.SelectionSet {
			if f, ok := sel.(*language.Field); ok && (f.Name == "__schema" || f.Name == "__type") {
				ge := executor.GraphQLError{Message: "introspection is disabled"}
				if f.Position != nil {
					ge.Locations = []executor.Location{{Line: f.Position.Line, Column: f.Position.Column}}
				}
				return nil, &executor.ExecutionResult{Errors: []executor.GraphQLError{ge}}
			}
		}
	}
	return op, nil
}

func (e *Engine) execute(ctx context.Context, req Request, op *language.OperationDefinition) *executor.ExecutionResult {
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: string(op.Operation)})
	result := e.exec.Execute(ctx, op, req.Variables)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: string(op.Operation),
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return result
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}

func fromErrorList(errs language.ErrorList) *executor.ExecutionResult {
	out := make([]executor.GraphQLError, len(errs))
	for i, err := range errs {
		ge := executor.GraphQLError{Message: err.Message, Extensions: err.Extensions}
		for _, loc := range err.Locations {
			ge.Locations = append(ge.Locations, executor.Location{Line: loc.Line, Column: loc.Column})
		}
		out[i] = ge
	}
	return &executor.ExecutionResult{Errors: out}
}
