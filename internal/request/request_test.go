package request

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	engine "github.com/hanpama/gqlstream/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Classification(t *testing.T) {
	op, err := Decode(url.Values{"query": {"{firstName}"}})
	require.NoError(t, err)
	assert.True(t, op.IsQuery())
	assert.Equal(t, Query("{firstName}"), op.Payload)

	op, err = Decode(url.Values{"subscription": {"{interval}"}})
	require.NoError(t, err)
	assert.False(t, op.IsQuery())
	assert.Equal(t, Subscription("{interval}"), op.Payload)
}

func TestDecode_ConflictAndMissing(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		want   error
	}{
		{"both", url.Values{"query": {"{a}"}, "subscription": {"{b}"}}, ErrConflict},
		{"neither", url.Values{"operationName": {"A"}}, ErrMissing},
		{"both empty", url.Values{"query": {""}, "subscription": {""}}, ErrConflict},
		{"empty query with subscription", url.Values{"query": {""}, "subscription": {"{interval}"}}, ErrConflict},
		{"empty subscription with query", url.Values{"query": {"{a}"}, "subscription": {""}}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Decode(tt.values)
			require.Nil(t, op)
			require.ErrorIs(t, err, tt.want)
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			require.Equal(t, "", de.Field)
		})
	}
}

func TestDecode_EmptyKeyNamesField(t *testing.T) {
	for _, raw := range []string{"query=", "subscription=&operationName=A"} {
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)

		op, err := Decode(values)
		require.Nil(t, op)
		var de *DecodeError
		require.True(t, errors.As(err, &de), raw)
		require.Equal(t, strings.SplitN(raw, "=", 2)[0], de.Field)
		require.EqualError(t, err, "invalid "+de.Field+": must not be empty")
	}
}

func TestDecode_Variables(t *testing.T) {
	op, err := Decode(url.Values{"subscription": {"($n: Int) { interval(n: $n) }"}, "variables": {`{"n":3}`}})
	require.NoError(t, err)

	req := op.Request()
	want := engine.Request{
		Query:     "subscription ($n: Int) { interval(n: $n) }",
		Variables: map[string]any{"n": json.Number("3")},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	n, err := req.Variables["n"].(json.Number).Int64()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestDecode_LargeIntegerKeepsPrecision(t *testing.T) {
	op, err := Decode(url.Values{"query": {"{a}"}, "variables": {`{"big":9007199254740993}`}})
	require.NoError(t, err)
	require.Equal(t, json.Number("9007199254740993"), op.Request().Variables["big"])
}

func TestDecode_NonObjectVariables(t *testing.T) {
	op, err := Decode(url.Values{"query": {"{a}"}, "variables": {`[1,2]`}})
	require.NoError(t, err)
	require.Equal(t, []any{json.Number("1"), json.Number("2")}, op.Variables)
	require.Equal(t, map[string]any{}, op.Request().Variables)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		field  string
	}{
		{"variables syntax", url.Values{"query": {"{a}"}, "variables": {`{"n":`}}, "variables"},
		{"variables trailing", url.Values{"query": {"{a}"}, "variables": {`{} {}`}}, "variables"},
		{"extensions syntax", url.Values{"query": {"{a}"}, "extensions": {`nope`}}, "extensions"},
		{"extensions not object", url.Values{"query": {"{a}"}, "extensions": {`[1]`}}, "extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.values)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			require.Equal(t, tt.field, de.Field)
			require.True(t, strings.HasPrefix(err.Error(), "invalid "+tt.field+": "))
		})
	}
}

func TestDecode_OperationNameAndExtensions(t *testing.T) {
	op, err := Decode(url.Values{
		"query":         {"A { firstName }"},
		"operationName": {"A"},
		"extensions":    {`{"persisted":{"version":1}}`},
	})
	require.NoError(t, err)

	want := engine.Request{
		Query:         "query A { firstName }",
		OperationName: "A",
		Extensions:    map[string]any{"persisted": map[string]any{"version": json.Number("1")}},
	}
	if diff := cmp.Diff(want, op.Request()); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJSON(t *testing.T) {
	req, err := DecodeJSON(strings.NewReader(`{"query":"query Q($n: Int) { a(n: $n) }","operationName":"Q","variables":{"n":3},"extensions":null}`))
	require.NoError(t, err)
	want := engine.Request{
		Query:         "query Q($n: Int) { a(n: $n) }",
		OperationName: "Q",
		Variables:     map[string]any{"n": json.Number("3")},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid json", `{`, "body"},
		{"missing query", `{"operationName":"A"}`, "query"},
		{"variables not object", `{"query":"{a}","variables":"x"}`, "variables"},
		{"extensions not object", `{"query":"{a}","extensions":3}`, "extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON(strings.NewReader(tt.body))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			require.Equal(t, tt.field, de.Field)
		})
	}
}
