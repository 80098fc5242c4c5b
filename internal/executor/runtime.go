package executor

import "context"

// Runtime supplies field values to the Executor.
//
// Implementations must be safe for concurrent use: sibling fields of one
// selection set are resolved concurrently. source and args must not be
// mutated.
type Runtime interface {
	// ResolveField returns the raw value of objectType.field for the parent
	// value source. source is nil for query root fields. args holds the
	// coerced argument values, with defaults applied. Returning (nil, nil)
	// yields null.
	ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error)

	// SerializeLeafValue turns a resolved scalar or enum value into a value
	// encoding/json can marshal. Enum values are already checked to be one of
	// the enum's names when passed as strings.
	SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error)

	// SubscribeField creates the source event stream of a root subscription
	// field. It is called once per subscription, before any event is
	// executed.
	//
	// Every value received becomes the root field value of one execution of
	// the selection set; a value that is an error becomes a field error. The
	// runtime closes the channel when the source is exhausted, and must stop
	// and close it once ctx is done. Sends must select on ctx.Done().
	SubscribeField(ctx context.Context, objectType, field string, args map[string]any) (<-chan any, error)
}
