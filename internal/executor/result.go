package executor

import (
	"fmt"
	"strings"
)

// Path locates a value in the response: field names and list indexes.
type Path []any

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch s := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", s)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, s)
		}
	}
	return b.String()
}

// with returns a copy of p extended by seg. Sibling fields resolve
// concurrently, so paths are never appended to in place.
func (p Path) with(seg any) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is one entry of the "errors" list of a response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return e.Path.String() + ": " + e.Message
}

// ExecutionResult is the response to one execution. Data is nil when the
// request failed before execution started.
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// HasErrors reports whether the result carries at least one error.
func (r *ExecutionResult) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// ErrorResult returns a result with no data and a single error.
func ErrorResult(format string, args ...any) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf(format, args...)}}}
}
