package language

import "github.com/vektah/gqlparser/v2/ast"

// Document and schema nodes used by the executor and introspection.
type (
	Schema              = ast.Schema
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	Operation           = ast.Operation
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	DirectiveList       = ast.DirectiveList
	Definition          = ast.Definition
	DefinitionKind      = ast.DefinitionKind
	FieldDefinition     = ast.FieldDefinition
	ArgumentDefinition  = ast.ArgumentDefinition
	EnumValueDefinition = ast.EnumValueDefinition
	DirectiveDefinition = ast.DirectiveDefinition
	Type                = ast.Type
	Value               = ast.Value
)

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

const (
	Scalar      = ast.Scalar
	Object      = ast.Object
	Interface   = ast.Interface
	Union       = ast.Union
	Enum        = ast.Enum
	InputObject = ast.InputObject
)
