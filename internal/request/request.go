// Package request decodes transport-level GraphQL requests.
//
// A GET request carries the operation body under exactly one of two keys,
// query or subscription; the key decides whether the operation is executed
// once or streamed. A POST request carries a standard JSON body and is always
// executed once.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	engine "github.com/hanpama/gqlstream/internal/engine"
)

var (
	// ErrConflict reports that both query and subscription were given.
	ErrConflict = errors.New("query and subscription are mutually exclusive")
	// ErrMissing reports that neither query nor subscription was given.
	ErrMissing = errors.New("one of query or subscription is required")

	errEmpty = errors.New("must not be empty")
)

// DecodeError is returned for malformed or ambiguous request parameters.
// Field names the offending parameter; it is empty for ErrConflict and
// ErrMissing. A key is present when it appears in the query string, even with
// an empty value.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Payload is the operation body. It is either a Query or a Subscription.
type Payload interface {
	// Keyword is the operation keyword prefixed to the body.
	Keyword() string
	Body() string
}

// Query is a body executed once.
type Query string

// Subscription is a body executed as a stream.
type Subscription string

func (Query) Keyword() string        { return "query" }
func (q Query) Body() string         { return string(q) }
func (Subscription) Keyword() string { return "subscription" }
func (s Subscription) Body() string  { return string(s) }

// Operation is a decoded GET request.
type Operation struct {
	Payload       Payload
	OperationName string
	// Variables is any JSON value, numbers kept as json.Number.
	Variables any
	// Extensions is nil when absent.
	Extensions map[string]any
}

// IsQuery reports whether the operation is executed once.
func (o *Operation) IsQuery() bool {
	_, ok := o.Payload.(Query)
	return ok
}

// Request builds the engine request. The document is the operation keyword
// followed by the body. Variables that are not a JSON object are dropped.
func (o *Operation) Request() engine.Request {
	req := engine.Request{
		Query:         o.Payload.Keyword() + " " + o.Payload.Body(),
		OperationName: o.OperationName,
		Extensions:    o.Extensions,
	}
	switch vars := o.Variables.(type) {
	case nil:
	case map[string]any:
		req.Variables = vars
	default:
		req.Variables = map[string]any{}
	}
	return req
}

// Decode decodes the query parameters of a GET request. It has no side
// effects.
func Decode(values url.Values) (*Operation, error) {
	op := &Operation{OperationName: values.Get("operationName")}
	switch {
	case values.Has("query") && values.Has("subscription"):
		return nil, &DecodeError{Err: ErrConflict}
	case values.Has("query"):
		op.Payload = Query(values.Get("query"))
	case values.Has("subscription"):
		op.Payload = Subscription(values.Get("subscription"))
	default:
		return nil, &DecodeError{Err: ErrMissing}
	}
	if op.Payload.Body() == "" {
		return nil, &DecodeError{Field: op.Payload.Keyword(), Err: errEmpty}
	}

	if raw := values.Get("variables"); raw != "" {
		var vars any
		if err := unmarshal([]byte(raw), &vars); err != nil {
			return nil, &DecodeError{Field: "variables", Err: err}
		}
		op.Variables = vars
	}
	if raw := values.Get("extensions"); raw != "" {
		ext, err := decodeObject([]byte(raw))
		if err != nil {
			return nil, &DecodeError{Field: "extensions", Err: err}
		}
		op.Extensions = ext
	}
	return op, nil
}

// DecodeJSON decodes a POST body: a JSON object with query, operationName,
// variables and extensions.
func DecodeJSON(r io.Reader) (engine.Request, error) {
	var body struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
		Extensions    json.RawMessage `json:"extensions"`
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return engine.Request{}, err
	}
	if err := unmarshal(raw, &body); err != nil {
		return engine.Request{}, &DecodeError{Field: "body", Err: err}
	}
	if body.Query == "" {
		return engine.Request{}, &DecodeError{Field: "query", Err: errEmpty}
	}
	req := engine.Request{Query: body.Query, OperationName: body.OperationName}
	if req.Variables, err = decodeObject(body.Variables); err != nil {
		return engine.Request{}, &DecodeError{Field: "variables", Err: err}
	}
	if req.Extensions, err = decodeObject(body.Extensions); err != nil {
		return engine.Request{}, &DecodeError{Field: "extensions", Err: err}
	}
	return req, nil
}

// decodeObject decodes a JSON object. Empty input and null yield nil.
func decodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := unmarshal(raw, &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(v))
	}
	return m, nil
}

// unmarshal decodes exactly one JSON value, keeping numbers as json.Number.
func unmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return "null"
	}
}
