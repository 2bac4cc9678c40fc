package graph

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

func timeScalar(name, description, layout string) *graphql.Scalar {
	parse := func(s string) interface{} {
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil
		}
		return t
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				if v.IsZero() {
					return nil
				}
				return v.UTC().Format(layout)
			case *time.Time:
				if v == nil || v.IsZero() {
					return nil
				}
				return v.UTC().Format(layout)
			case string:
				return v
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if s, ok := value.(string); ok {
				return parse(s)
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if s, ok := valueAST.(*ast.StringValue); ok {
				return parse(s.Value)
			}
			return nil
		},
	})
}

// DateScalar carries calendar dates as YYYY-MM-DD.
var DateScalar = timeScalar("Date", "A calendar date, YYYY-MM-DD.", dateLayout)

// DateTimeScalar carries instants as RFC 3339 strings.
var DateTimeScalar = timeScalar("DateTime", "An instant, RFC 3339 (YYYY-MM-DDTHH:mm:SSZ).", dateTimeLayout)

// JSONScalar passes arbitrary JSON through unchanged.
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value.",
	Serialize:   func(value interface{}) interface{} { return value },
	ParseValue:  func(value interface{}) interface{} { return value },
	ParseLiteral: func(valueAST ast.Value) interface{} {
		return literalValue(valueAST)
	},
})

func literalValue(v ast.Value) interface{} {
	switch v := v.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, literalValue(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name.Value] = literalValue(f.Value)
		}
		return out
	}
	return nil
}
