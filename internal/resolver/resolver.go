// Package resolver provides an executor.Runtime backed by plain Go functions
// registered per "Type.field".
package resolver

import (
	"context"
	"fmt"
	"math"
	"reflect"

	executor "github.com/hanpama/gqlstream/internal/executor"
)

// FieldFunc resolves one field of one parent value.
type FieldFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// SourceFunc creates the source event stream of a subscription field. The
// returned channel must be closed once ctx is done.
type SourceFunc func(ctx context.Context, args map[string]any) (<-chan any, error)

// SerializeFunc turns a custom scalar or enum value into a JSON-safe value.
type SerializeFunc func(value any) (any, error)

// Runtime implements executor.Runtime. Register everything before the first
// request; registration is not safe for concurrent use with execution.
type Runtime struct {
	fields      map[string]FieldFunc
	sources     map[string]SourceFunc
	serializers map[string]SerializeFunc
}

var _ executor.Runtime = (*Runtime)(nil)

// New returns an empty Runtime. Fields without a registered resolver are read
// from their parent value.
func New() *Runtime {
	return &Runtime{
		fields:      make(map[string]FieldFunc),
		sources:     make(map[string]SourceFunc),
		serializers: make(map[string]SerializeFunc),
	}
}

func key(objectType, field string) string { return objectType + "." + field }

// Field registers the resolver of objectType.field.
func (r *Runtime) Field(objectType, field string, fn FieldFunc) *Runtime {
	r.fields[key(objectType, field)] = fn
	return r
}

// Subscription registers the source of a root subscription field.
func (r *Runtime) Subscription(objectType, field string, fn SourceFunc) *Runtime {
	r.sources[key(objectType, field)] = fn
	return r
}

// Scalar registers the serializer of a custom scalar or enum.
func (r *Runtime) Scalar(typeName string, fn SerializeFunc) *Runtime {
	r.serializers[typeName] = fn
	return r
}

func (r *Runtime) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if fn, ok := r.fields[key(objectType, field)]; ok {
		return fn(ctx, source, args)
	}
	return project(source, field)
}

// project reads field from a map or from an exported struct field with a
// matching `graphql` tag or name.
func project(source any, field string) (any, error) {
	switch src := source.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return src[field], nil
	}
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("no resolver for field %q on %T", field, source)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Tag.Get("graphql") == field || sf.Name == field {
			return v.Field(i).Interface(), nil
		}
	}
	return nil, fmt.Errorf("no resolver for field %q on %T", field, source)
}

func (r *Runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if fn, ok := r.serializers[typeName]; ok {
		return fn(value)
	}
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String", "ID":
		if s, ok := value.(string); ok {
			return s, nil
		}
		if s, ok := value.(fmt.Stringer); ok {
			return s.String(), nil
		}
		return fmt.Sprint(value), nil
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent %v (%T)", value, value)
	}
	return value, nil
}

func (r *Runtime) SubscribeField(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error) {
	fn, ok := r.sources[key(objectType, field)]
	if !ok {
		return nil, fmt.Errorf("no subscription source for %s.%s", objectType, field)
	}
	return fn(ctx, args)
}

func serializeInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	default:
		return nil, fmt.Errorf("Int cannot represent %v (%T)", value, value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit integer %d", n)
	}
	return int(n), nil
}

// serializeFloat keeps non-finite values as they are; encoding them fails
// later, at the transport.
func serializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("Float cannot represent %v (%T)", value, value)
}
