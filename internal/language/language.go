// Package language is the GraphQL parsing, validation and printing layer,
// backed by gqlparser.
package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Error is a GraphQL error with optional source locations.
type Error = gqlerror.Error

// ErrorList is a list of GraphQL errors.
type ErrorList = gqlerror.List

// LoadSchema parses and validates SDL, merging in the built-in scalars,
// directives and introspection types. The query root gains the __schema and
// __type fields.
func LoadSchema(name, source string) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseAndValidate parses source and validates it against s. Syntax and
// validation errors are both reported in the ErrorList. A document returned
// without errors has every field, fragment spread and directive linked to its
// schema definition.
func ParseAndValidate(s *Schema, source string) (*QueryDocument, ErrorList) {
	doc, errs := gqlparser.LoadQuery(s, source)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// VariableValues checks the request variables of op against their declared
// types and applies variable defaults.
func VariableValues(s *Schema, op *OperationDefinition, vars map[string]any) (map[string]any, error) {
	return validator.VariableValues(s, op, vars)
}

// FormatSchema renders s as SDL, leaving out built-in definitions.
func FormatSchema(s *Schema) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchema(s)
	return buf.String()
}
