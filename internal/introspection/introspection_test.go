package introspection

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	executor "github.com/hanpama/gqlstream/internal/executor"
	language "github.com/hanpama/gqlstream/internal/language"
	resolver "github.com/hanpama/gqlstream/internal/resolver"
)

const testSDL = `
"The query root"
type Query {
  hello(greeting: String = "hi", times: Int = 2): String
  old: String @deprecated(reason: "use hello")
  color: Color
}
enum Color { RED GREEN @deprecated }
input Point { x: Int = 0, y: Int }
type Subscription { interval(n: Int = 1): Int! }
`

func execute(t *testing.T, query string) map[string]any {
	t.Helper()
	s, err := language.LoadSchema("test.graphql", testSDL)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	doc, errs := language.ParseAndValidate(s, query)
	if len(errs) > 0 {
		t.Fatalf("invalid query: %v", errs)
	}
	res := executor.New(s, Wrap(resolver.New(), s)).Execute(context.Background(), doc.Operations[0], nil)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	return res.Data.(map[string]any)
}

func TestRootTypes(t *testing.T) {
	got := execute(t, `{ __schema { queryType { name description } subscriptionType { name } mutationType { name } } }`)
	want := map[string]any{
		"__schema": map[string]any{
			"queryType":        map[string]any{"name": "Query", "description": "The query root"},
			"subscriptionType": map[string]any{"name": "Subscription"},
			"mutationType":     nil,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldsAndArgumentDefaults(t *testing.T) {
	got := execute(t, `{ __type(name: "Query") { kind fields { name args { name defaultValue type { name } } } } }`)
	want := map[string]any{
		"__type": map[string]any{
			"kind": "OBJECT",
			"fields": []any{
				map[string]any{
					"name": "hello",
					"args": []any{
						map[string]any{"name": "greeting", "defaultValue": `"hi"`, "type": map[string]any{"name": "String"}},
						map[string]any{"name": "times", "defaultValue": "2", "type": map[string]any{"name": "Int"}},
					},
				},
				map[string]any{"name": "color", "args": []any{}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecated(t *testing.T) {
	got := execute(t, `{
		q: __type(name: "Query") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } }
		c: __type(name: "Color") { enumValues { name } all: enumValues(includeDeprecated: true) { name isDeprecated } }
	}`)
	want := map[string]any{
		"q": map[string]any{"fields": []any{
			map[string]any{"name": "hello", "isDeprecated": false, "deprecationReason": nil},
			map[string]any{"name": "old", "isDeprecated": true, "deprecationReason": "use hello"},
			map[string]any{"name": "color", "isDeprecated": false, "deprecationReason": nil},
		}},
		"c": map[string]any{
			"enumValues": []any{map[string]any{"name": "RED"}},
			"all": []any{
				map[string]any{"name": "RED", "isDeprecated": false},
				map[string]any{"name": "GREEN", "isDeprecated": true},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeReferences(t *testing.T) {
	got := execute(t, `{
		s: __type(name: "Subscription") { fields { type { kind name ofType { kind name } } } }
		p: __type(name: "Point") { kind inputFields { name defaultValue } }
		missing: __type(name: "Nope") { name }
	}`)
	want := map[string]any{
		"s": map[string]any{"fields": []any{
			map[string]any{"type": map[string]any{"kind": "NON_NULL", "name": nil, "ofType": map[string]any{"kind": "SCALAR", "name": "Int"}}},
		}},
		"p": map[string]any{"kind": "INPUT_OBJECT", "inputFields": []any{
			map[string]any{"name": "x", "defaultValue": "0"},
			map[string]any{"name": "y", "defaultValue": nil},
		}},
		"missing": nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestTypesAreListedByName(t *testing.T) {
	got := execute(t, `{ __schema { types { name } directives { name } } }`)
	types := got["__schema"].(map[string]any)["types"].([]any)
	var names []string
	for _, typ := range types {
		names = append(names, typ.(map[string]any)["name"].(string))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("types not sorted: %v", names)
		}
	}
	for _, want := range []string{"Color", "Query", "__Schema", "String"} {
		found := false
		for _, name := range names {
			found = found || name == want
		}
		if !found {
			t.Fatalf("type %s missing from %v", want, names)
		}
	}
}

func TestTypenameWithoutWrapper(t *testing.T) {
	s, err := language.LoadSchema("test.graphql", testSDL)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	doc, _ := language.ParseAndValidate(s, "{ __typename }")
	res := executor.New(s, resolver.New()).Execute(context.Background(), doc.Operations[0], nil)
	if diff := cmp.Diff(map[string]any{"__typename": "Query"}, res.Data); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}
