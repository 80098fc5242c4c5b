package executor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	language "github.com/hanpama/gqlstream/internal/language"
)

// coerceVariables checks the request variables of op and converts them to
// the Go values resolvers receive: int for Int, float64 for Float, string for
// ID. Numbers decoded as json.Number are accepted.
func coerceVariables(s *language.Schema, op *language.OperationDefinition, vars map[string]any) (map[string]any, error) {
	checked, err := language.VariableValues(s, op, vars)
	var gqlErr *language.Error
	if errors.As(err, &gqlErr) {
		return nil, fmt.Errorf("%s %s", gqlErr.Path, gqlErr.Message)
	}
	if err != nil {
		return nil, err
	}
	for _, def := range op.VariableDefinitions {
		v, ok := checked[def.Variable]
		if !ok {
			continue
		}
		c, err := coerceValue(s, def.Type, v)
		if err != nil {
			return nil, fmt.Errorf("variable $%s: %w", def.Variable, err)
		}
		checked[def.Variable] = c
	}
	return checked, nil
}

// arguments returns the coerced arguments of field, defaults applied.
func (x *execution) arguments(field *language.Field) (map[string]any, error) {
	args := field.ArgumentMap(x.vars)
	for _, def := range field.Definition.Arguments {
		v, ok := args[def.Name]
		if !ok {
			continue
		}
		c, err := coerceValue(x.schema, def.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", def.Name, err)
		}
		args[def.Name] = c
	}
	return args, nil
}

func coerceValue(s *language.Schema, typ *language.Type, v any) (any, error) {
	if isNull(v) {
		return nil, nil
	}
	if typ.Elem != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			c, err := coerceValue(s, typ.Elem, v)
			if err != nil {
				return nil, err
			}
			return []any{c}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			c, err := coerceValue(s, typ.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}

	if def := s.Types[typ.NamedType]; def != nil && def.Kind == language.InputObject {
		return coerceInputObject(s, def, v)
	}
	switch typ.NamedType {
	case "Int":
		return coerceInt(v)
	case "Float":
		return coerceFloat(v)
	case "String":
		if _, ok := v.(json.Number); ok {
			return nil, fmt.Errorf("cannot use number %s as String", v)
		}
	case "ID":
		switch id := v.(type) {
		case string:
			return id, nil
		case json.Number:
			return id.String(), nil
		case int, int32, int64:
			return fmt.Sprint(id), nil
		}
		return nil, fmt.Errorf("cannot use %T as ID", v)
	}
	return v, nil
}

func coerceInputObject(s *language.Schema, def *language.Definition, v any) (any, error) {
	in, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %T as %s", v, def.Name)
	}
	out := make(map[string]any, len(in))
	for _, f := range def.Fields {
		fv, ok := in[f.Name]
		if !ok && f.DefaultValue != nil {
			dv, err := f.DefaultValue.Value(nil)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			fv, ok = dv, true
		}
		if !ok {
			continue
		}
		c, err := coerceValue(s, f.Type, fv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out[f.Name] = c
	}
	return out, nil
}

func coerceInt(v any) (any, error) {
	var n int64
	switch i := v.(type) {
	case int:
		n = int64(i)
	case int32:
		n = int64(i)
	case int64:
		n = i
	case json.Number:
		parsed, err := strconv.ParseInt(i.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot use %s as Int", i)
		}
		n = parsed
	case float64:
		if i != math.Trunc(i) {
			return nil, fmt.Errorf("cannot use %v as Int", i)
		}
		n = int64(i)
	default:
		return nil, fmt.Errorf("cannot use %T as Int", v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value %d", n)
	}
	return int(n), nil
}

func coerceFloat(v any) (any, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case int:
		return float64(f), nil
	case int64:
		return float64(f), nil
	case json.Number:
		parsed, err := f.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot use %s as Float", f)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("cannot use %T as Float", v)
}
