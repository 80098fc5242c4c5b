// Package introspection answers the __schema and __type root fields from the
// loaded schema.
//
// The introspection types (__Schema, __Type, ...) are ordinary object types of
// the schema. Their values are built once, as maps keyed by field name, and
// the executor completes them like any other object. Fields taking arguments
// hold a func(args) value.
package introspection

import (
	"context"
	"slices"
	"strings"

	executor "github.com/hanpama/gqlstream/internal/executor"
	language "github.com/hanpama/gqlstream/internal/language"
)

type object map[string]any

type argsFunc func(args map[string]any) any

// Wrap returns a Runtime resolving introspection fields from s and every
// other field through rt.
func Wrap(rt executor.Runtime, s *language.Schema) executor.Runtime {
	b := &builder{schema: s, types: make(map[string]object, len(s.Types))}
	r := &runtime{Runtime: rt, types: b.build(), schema: b.schemaValue()}
	if s.Query != nil {
		r.query = s.Query.Name
	}
	return r
}

type runtime struct {
	executor.Runtime
	query  string
	types  map[string]object
	schema object
}

func (r *runtime) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch {
	case objectType == r.query && field == "__schema":
		return r.schema, nil
	case objectType == r.query && field == "__type":
		name, _ := args["name"].(string)
		if t, ok := r.types[name]; ok {
			return t, nil
		}
		return nil, nil
	case strings.HasPrefix(objectType, "__"):
		v := source.(object)[field]
		if fn, ok := v.(argsFunc); ok {
			return fn(args), nil
		}
		return v, nil
	}
	return r.Runtime.ResolveField(ctx, objectType, field, source, args)
}

// SerializeLeafValue passes the introspection enums through; their values are
// already names.
func (r *runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if strings.HasPrefix(typeName, "__") {
		return value, nil
	}
	return r.Runtime.SerializeLeafValue(ctx, typeName, value)
}

type builder struct {
	schema *language.Schema
	types  map[string]object
}

// build creates one value per named type. Values are allocated first so
// type references can point at them before they are filled.
func (b *builder) build() map[string]object {
	for name := range b.schema.Types {
		b.types[name] = object{}
	}
	for name, def := range b.schema.Types {
		b.fill(b.types[name], def)
	}
	return b.types
}

func (b *builder) schemaValue() object {
	names := make([]string, 0, len(b.types))
	for name := range b.types {
		names = append(names, name)
	}
	slices.Sort(names)
	types := make([]any, len(names))
	for i, name := range names {
		types[i] = b.types[name]
	}

	dirNames := make([]string, 0, len(b.schema.Directives))
	for name := range b.schema.Directives {
		dirNames = append(dirNames, name)
	}
	slices.Sort(dirNames)
	directives := make([]any, len(dirNames))
	for i, name := range dirNames {
		directives[i] = b.directive(b.schema.Directives[name])
	}

	return object{
		"description":      optional(b.schema.Description),
		"types":            types,
		"queryType":        b.root(b.schema.Query),
		"mutationType":     b.root(b.schema.Mutation),
		"subscriptionType": b.root(b.schema.Subscription),
		"directives":       directives,
	}
}

func (b *builder) root(def *language.Definition) any {
	if def == nil {
		return nil
	}
	return b.types[def.Name]
}

func (b *builder) fill(t object, def *language.Definition) {
	t["kind"] = string(def.Kind)
	t["name"] = def.Name
	t["description"] = optional(def.Description)
	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if url := d.Arguments.ForName("url"); url != nil {
			t["specifiedByURL"] = url.Value.Raw
		}
	}

	switch def.Kind {
	case language.Object, language.Interface:
		t["fields"] = argsFunc(func(args map[string]any) any {
			var out []any
			for _, f := range def.Fields {
				if strings.HasPrefix(f.Name, "__") || !visible(f.Directives, args) {
					continue
				}
				out = append(out, b.field(f))
			}
			return out
		})
		interfaces := make([]any, len(def.Interfaces))
		for i, name := range def.Interfaces {
			interfaces[i] = b.types[name]
		}
		t["interfaces"] = interfaces
	case language.Enum:
		t["enumValues"] = argsFunc(func(args map[string]any) any {
			var out []any
			for _, v := range def.EnumValues {
				if visible(v.Directives, args) {
					out = append(out, b.deprecatable(object{"name": v.Name, "description": optional(v.Description)}, v.Directives))
				}
			}
			return out
		})
	case language.InputObject:
		t["isOneOf"] = def.Directives.ForName("oneOf") != nil
		t["inputFields"] = argsFunc(func(args map[string]any) any {
			var out []any
			for _, f := range def.Fields {
				if visible(f.Directives, args) {
					out = append(out, b.inputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives))
				}
			}
			return out
		})
	}
	if def.Kind == language.Interface || def.Kind == language.Union {
		var possible []any
		for _, pt := range b.schema.PossibleTypes[def.Name] {
			possible = append(possible, b.types[pt.Name])
		}
		t["possibleTypes"] = possible
	}
}

func (b *builder) field(f *language.FieldDefinition) object {
	return b.deprecatable(object{
		"name":        f.Name,
		"description": optional(f.Description),
		"args":        b.args(f.Arguments),
		"type":        b.typeRef(f.Type),
	}, f.Directives)
}

func (b *builder) args(defs []*language.ArgumentDefinition) argsFunc {
	return func(args map[string]any) any {
		out := []any{}
		for _, a := range defs {
			if visible(a.Directives, args) {
				out = append(out, b.inputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
			}
		}
		return out
	}
}

func (b *builder) inputValue(name, description string, typ *language.Type, defaultValue *language.Value, dirs language.DirectiveList) object {
	v := object{
		"name":        name,
		"description": optional(description),
		"type":        b.typeRef(typ),
	}
	if defaultValue != nil {
		v["defaultValue"] = defaultValue.String()
	}
	return b.deprecatable(v, dirs)
}

func (b *builder) directive(d *language.DirectiveDefinition) object {
	locations := make([]any, len(d.Locations))
	for i, l := range d.Locations {
		locations[i] = string(l)
	}
	return object{
		"name":         d.Name,
		"description":  optional(d.Description),
		"isRepeatable": d.IsRepeatable,
		"locations":    locations,
		"args":         b.args(d.Arguments),
	}
}

func (b *builder) typeRef(t *language.Type) object {
	switch {
	case t.NonNull:
		nullable := *t
		nullable.NonNull = false
		return object{"kind": "NON_NULL", "ofType": b.typeRef(&nullable)}
	case t.Elem != nil:
		return object{"kind": "LIST", "ofType": b.typeRef(t.Elem)}
	}
	return b.types[t.NamedType]
}

func (b *builder) deprecatable(v object, dirs language.DirectiveList) object {
	d := dirs.ForName("deprecated")
	v["isDeprecated"] = d != nil
	if d != nil {
		reason := "No longer supported"
		if r := d.Arguments.ForName("reason"); r != nil {
			reason = r.Value.Raw
		}
		v["deprecationReason"] = reason
	}
	return v
}

// visible reports whether an element is listed: deprecated ones only when
// includeDeprecated is true.
func visible(dirs language.DirectiveList, args map[string]any) bool {
	return dirs.ForName("deprecated") == nil || args["includeDeprecated"] == true
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
