package executor

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/gqlstream/internal/language"
	"github.com/stretchr/testify/require"
)

const valuesSDL = `
type Query {
  a(n: Int, f: Float, id: ID, l: [Int], in: Filter, b: Boolean): Int
}
input Filter {
  limit: Int = 10
  tags: [String!]
}
`

func coerce(t *testing.T, query string, vars map[string]any) (map[string]any, error) {
	t.Helper()
	s, err := language.LoadSchema("values.graphql", valuesSDL)
	require.NoError(t, err)
	return coerceVariables(s, mustOperation(t, s, query), vars)
}

func TestCoerceVariables_JSONNumbers(t *testing.T) {
	got, err := coerce(t, `query ($n: Int!, $f: Float, $id: ID, $l: [Int], $in: Filter) { a(n: $n, f: $f, id: $id, l: $l, in: $in) }`, map[string]any{
		"n":  json.Number("3"),
		"f":  json.Number("1.5"),
		"id": json.Number("42"),
		"l":  []any{json.Number("1"), json.Number("2")},
		"in": map[string]any{"tags": []any{"x"}},
	})
	require.NoError(t, err)

	want := map[string]any{
		"n":  3,
		"f":  1.5,
		"id": "42",
		"l":  []any{1, 2},
		"in": map[string]any{"limit": 10, "tags": []any{"x"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("coerced variables mismatch (-want +got):\n%s", diff)
	}
}

func TestCoerceVariables_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		vars  map[string]any
		want  string
	}{
		{"missing required", `query ($n: Int!) { a(n: $n) }`, nil, "variable.n must be defined"},
		{"null for non-null", `query ($n: Int!) { a(n: $n) }`, map[string]any{"n": nil}, "variable.n cannot be null"},
		{"int overflow", `query ($n: Int) { a(n: $n) }`, map[string]any{"n": json.Number("4294967296")}, "variable $n: Int cannot represent non 32-bit signed integer value 4294967296"},
		{"fraction", `query ($n: Int) { a(n: $n) }`, map[string]any{"n": 1.5}, "variable $n: cannot use 1.5 as Int"},
		{"bool", `query ($b: Boolean) { a(b: $b) }`, map[string]any{"b": "yes"}, "variable.b cannot use string as Boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coerce(t, tt.query, tt.vars)
			require.EqualError(t, err, tt.want)
		})
	}
}

func TestCoerceVariables_Default(t *testing.T) {
	got, err := coerce(t, `query ($n: Int = 5, $f: Float) { a(n: $n, f: $f) }`, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": 5}, got)
}
