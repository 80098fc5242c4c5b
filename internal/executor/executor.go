package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	language "github.com/hanpama/gqlstream/internal/language"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var errNonNull = errors.New("must not be null")

type Executor struct {
	schema  *language.Schema
	runtime Runtime
	sem     *semaphore.Weighted
}

type Option func(*Executor)

// WithParallelism bounds the ResolveField calls in flight across all
// operations of the Executor. n <= 0 removes the bound.
func WithParallelism(n int) Option {
	return func(e *Executor) {
		e.sem = nil
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New returns an Executor for s. Documents handed to it must have been
// validated against s with language.ParseAndValidate.
func New(s *language.Schema, rt Runtime, opts ...Option) *Executor {
	e := &Executor{schema: s, runtime: rt}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// operation is a validated operation with coerced variables.
type operation struct {
	def  *language.OperationDefinition
	root *language.Definition
	vars map[string]any
}

func (e *Executor) prepare(op *language.OperationDefinition, variables map[string]any) (*operation, *ExecutionResult) {
	var root *language.Definition
	switch op.Operation {
	case language.Query:
		root = e.schema.Query
	case language.Subscription:
		root = e.schema.Subscription
	}
	if root == nil {
		return nil, ErrorResult("%s operations are not supported", op.Operation)
	}
	vars, err := coerceVariables(e.schema, op, variables)
	if err != nil {
		return nil, ErrorResult("%s", err.Error())
	}
	return &operation{def: op, root: root, vars: vars}, nil
}

// Execute runs a query operation and returns its result.
func (e *Executor) Execute(ctx context.Context, op *language.OperationDefinition, variables map[string]any) *ExecutionResult {
	prepared, res := e.prepare(op, variables)
	if res != nil {
		return res
	}
	if op.Operation != language.Query {
		return ErrorResult("%s operations do not produce a single result", op.Operation)
	}
	x := e.newExecution(prepared)
	data, ok := x.executeFields(ctx, prepared.root, nil, x.collectFields(prepared.root, op.SelectionSet), nil)
	if !ok {
		return x.result(nil)
	}
	return x.result(data)
}

// execution holds the state of one run of a selection set: one query, or one
// subscription event.
type execution struct {
	*Executor
	vars map[string]any

	mu   sync.Mutex
	errs []GraphQLError
}

func (e *Executor) newExecution(op *operation) *execution {
	return &execution{Executor: e, vars: op.vars}
}

func (x *execution) fail(path Path, field *language.Field, err error) {
	ge := GraphQLError{Message: err.Error(), Path: path}
	var located GraphQLError
	if errors.As(err, &located) {
		ge.Message = located.Message
		ge.Extensions = located.Extensions
	}
	if field != nil && field.Position != nil {
		ge.Locations = []Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	x.mu.Lock()
	x.errs = append(x.errs, ge)
	x.mu.Unlock()
}

// result orders errors by path so concurrent resolution reports them
// deterministically.
func (x *execution) result(data map[string]any) *ExecutionResult {
	slices.SortStableFunc(x.errs, func(a, b GraphQLError) int {
		return strings.Compare(a.Path.String(), b.Path.String())
	})
	res := &ExecutionResult{Errors: x.errs}
	if data != nil {
		res.Data = data
	}
	return res
}

// fieldGroup is one response key and the field nodes merged under it.
type fieldGroup struct {
	key    string
	fields []*language.Field
}

func (g *fieldGroup) nonNull() bool {
	def := g.fields[0].Definition
	return def != nil && def.Type.NonNull
}

// collectFields groups the fields of set that apply to obj by response key,
// in document order, honoring @skip and @include.
func (x *execution) collectFields(obj *language.Definition, set language.SelectionSet) []*fieldGroup {
	var groups []*fieldGroup
	byKey := make(map[string]*fieldGroup)
	visited := make(map[string]bool)

	var walk func(language.SelectionSet)
	walk = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				if !x.included(s.Directives) {
					continue
				}
				g, ok := byKey[s.Alias]
				if !ok {
					g = &fieldGroup{key: s.Alias}
					byKey[s.Alias] = g
					groups = append(groups, g)
				}
				g.fields = append(g.fields, s)
			case *language.InlineFragment:
				if x.included(s.Directives) && applies(obj, s.TypeCondition) {
					walk(s.SelectionSet)
				}
			case *language.FragmentSpread:
				if !x.included(s.Directives) || visited[s.Name] || s.Definition == nil {
					continue
				}
				visited[s.Name] = true
				if applies(obj, s.Definition.TypeCondition) {
					walk(s.Definition.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return groups
}

func applies(obj *language.Definition, condition string) bool {
	return condition == "" || condition == obj.Name
}

func (x *execution) included(dirs language.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil && d.Definition != nil && d.ArgumentMap(x.vars)["if"] == true {
		return false
	}
	if d := dirs.ForName("include"); d != nil && d.Definition != nil && d.ArgumentMap(x.vars)["if"] == false {
		return false
	}
	return true
}

// executeFields resolves the fields of one object value, siblings
// concurrently. It reports false when a Non-Null field came back null; the
// object is then null itself.
func (x *execution) executeFields(ctx context.Context, obj *language.Definition, source any, groups []*fieldGroup, path Path) (map[string]any, bool) {
	values := make([]any, len(groups))
	oks := make([]bool, len(groups))
	if len(groups) == 1 {
		values[0], oks[0] = x.executeField(ctx, obj, source, groups[0], path.with(groups[0].key))
	} else {
		var g errgroup.Group
		for i, group := range groups {
			g.Go(func() error {
				values[i], oks[i] = x.executeField(ctx, obj, source, group, path.with(group.key))
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make(map[string]any, len(groups))
	for i, group := range groups {
		if !oks[i] && group.nonNull() {
			return nil, false
		}
		out[group.key] = values[i]
	}
	return out, true
}

// executeField resolves and completes one response key. A false result means
// the value is null and its error has been recorded.
func (x *execution) executeField(ctx context.Context, obj *language.Definition, source any, g *fieldGroup, path Path) (any, bool) {
	field := g.fields[0]
	if field.Name == "__typename" {
		return obj.Name, true
	}
	if field.Definition == nil {
		x.fail(path, field, fmt.Errorf("unknown field %s.%s", obj.Name, field.Name))
		return nil, false
	}
	args, err := x.arguments(field)
	if err != nil {
		x.fail(path, field, err)
		return nil, false
	}
	value, err := x.resolve(ctx, obj.Name, field.Name, source, args)
	if err != nil {
		x.fail(path, field, err)
		return nil, false
	}
	return x.completeValue(ctx, field.Definition.Type, g.fields, value, path)
}

func (x *execution) resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if x.sem != nil {
		if err := x.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer x.sem.Release(1)
	}
	return x.runtime.ResolveField(ctx, objectType, field, source, args)
}

func (x *execution) completeValue(ctx context.Context, typ *language.Type, fields []*language.Field, value any, path Path) (any, bool) {
	if err, ok := value.(error); ok {
		x.fail(path, fields[0], err)
		return nil, false
	}
	if typ.NonNull {
		nullable := *typ
		nullable.NonNull = false
		v, ok := x.completeValue(ctx, &nullable, fields, value, path)
		if ok && v == nil {
			x.fail(path, fields[0], errNonNull)
		}
		return v, ok && v != nil
	}
	if isNull(value) {
		return nil, true
	}
	if typ.Elem != nil {
		return x.completeList(ctx, typ, fields, value, path)
	}

	def := x.schema.Types[typ.NamedType]
	switch def.Kind {
	case language.Scalar, language.Enum:
		if s, ok := value.(string); ok && def.Kind == language.Enum && def.EnumValues.ForName(s) == nil {
			x.fail(path, fields[0], fmt.Errorf("%q is not a value of enum %s", s, def.Name))
			return nil, false
		}
		v, err := x.runtime.SerializeLeafValue(ctx, def.Name, value)
		if err != nil {
			x.fail(path, fields[0], err)
			return nil, false
		}
		return v, true
	case language.Object:
		var set language.SelectionSet
		for _, f := range fields {
			set = append(set, f.SelectionSet...)
		}
		data, ok := x.executeFields(ctx, def, value, x.collectFields(def, set), path)
		if !ok {
			return nil, false
		}
		return data, true
	}
	x.fail(path, fields[0], fmt.Errorf("values of %s type %s are not supported", strings.ToLower(string(def.Kind)), def.Name))
	return nil, false
}

func (x *execution) completeList(ctx context.Context, typ *language.Type, fields []*language.Field, value any, path Path) (any, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		x.fail(path, fields[0], fmt.Errorf("expected a list, got %T", value))
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		v, ok := x.completeValue(ctx, typ.Elem, fields, rv.Index(i).Interface(), path.with(i))
		if !ok && typ.Elem.NonNull {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func isNull(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
