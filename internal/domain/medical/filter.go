package medical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/homerev/api/pkg/pagination"
)

// Operator is a comparison accepted by the Filter input.
type Operator string

const (
	OpLT            Operator = "lt"
	OpGT            Operator = "gt"
	OpLTE           Operator = "lte"
	OpGTE           Operator = "gte"
	OpEQ            Operator = "eq"
	OpNEQ           Operator = "neq"
	OpArrayContains Operator = "arr_contains"
	OpIn            Operator = "in"
	OpNotIn         Operator = "not_in"
)

var mongoOperators = map[Operator]string{
	OpLT:            "$lt",
	OpGT:            "$gt",
	OpLTE:           "$lte",
	OpGTE:           "$gte",
	OpEQ:            "$eq",
	OpNEQ:           "$ne",
	OpArrayContains: "$elemMatch",
	OpIn:            "$in",
	OpNotIn:         "$nin",
}

// FilterType tells how the textual filter value is parsed.
type FilterType string

const (
	TypeString   FilterType = "String"
	TypeInt      FilterType = "Int"
	TypeFloat    FilterType = "Float"
	TypeBoolean  FilterType = "Boolean"
	TypeDate     FilterType = "Date"
	TypeDateTime FilterType = "DateTime"
)

const (
	DefaultSortField = "dateCreated"
	arraySeparator   = ","
)

// Fields a filter may address, by their API names. Nested paths are allowed
// below the payload fields.
var filterRoots = map[string]string{
	"id":          "_id",
	"type":        "type",
	"dateCreated": "dateCreated",
	"deadline":    "deadline",
	"task":        "task",
	"todo":        "todo",
}

// Filter is one condition on a task or todo field. With Array set, Value is
// a comma separated list.
type Filter struct {
	Field    string
	Operator Operator
	Value    string
	Type     FilterType
	Array    bool
}

// ListQuery selects one page of a patient's tasks or todos. Type and Filter
// are mutually exclusive.
type ListQuery struct {
	Cursor pagination.Cursor
	Type   string
	Filter *Filter
}

func (f Filter) documentField() (string, error) {
	if f.Field == "" {
		return "", fmt.Errorf("%w: field is required", ErrInvalidFilter)
	}
	if strings.Contains(f.Field, "$") {
		return "", fmt.Errorf("%w: invalid field %q", ErrInvalidFilter, f.Field)
	}
	parts := strings.Split(f.Field, ".")
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: invalid field %q", ErrInvalidFilter, f.Field)
		}
	}
	root, ok := filterRoots[parts[0]]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, f.Field)
	}
	if len(parts) > 1 && root != "task" && root != "todo" {
		return "", fmt.Errorf("%w: field %q has no sub fields", ErrInvalidFilter, parts[0])
	}
	parts[0] = root
	return strings.Join(parts, "."), nil
}

// ordersByField reports whether matches are sorted on the filtered field
// rather than on the creation date.
func (f Filter) ordersByField() bool {
	switch f.Operator {
	case OpLT, OpGT, OpLTE, OpGTE, OpNEQ, OpNotIn:
		return true
	}
	return false
}

func (f Filter) condition() (bson.E, error) {
	field, err := f.documentField()
	if err != nil {
		return bson.E{}, err
	}
	op, ok := mongoOperators[f.Operator]
	if !ok {
		return bson.E{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}

	var value interface{}
	if f.Array {
		var values []interface{}
		for _, raw := range strings.Split(f.Value, arraySeparator) {
			v, err := parseValue(f.Type, raw)
			if err != nil {
				return bson.E{}, err
			}
			values = append(values, v)
		}
		value = values
	} else {
		value, err = parseValue(f.Type, f.Value)
		if err != nil {
			return bson.E{}, err
		}
	}

	switch f.Operator {
	case OpIn, OpNotIn:
		if !f.Array {
			value = []interface{}{value}
		}
	case OpArrayContains:
		if f.Array {
			return bson.E{}, fmt.Errorf("%w: %s takes a single value", ErrInvalidFilter, f.Operator)
		}
		return bson.E{Key: field, Value: bson.M{op: bson.M{"$eq": value}}}, nil
	default:
		if f.Array && f.Operator != OpEQ && f.Operator != OpNEQ {
			return bson.E{}, fmt.Errorf("%w: %s takes a single value", ErrInvalidFilter, f.Operator)
		}
	}
	return bson.E{Key: field, Value: bson.M{op: value}}, nil
}

func parseValue(t FilterType, raw string) (interface{}, error) {
	switch t {
	case TypeString:
		return raw, nil
	case TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an Int", ErrInvalidFilter, raw)
		}
		return n, nil
	case TypeFloat:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a Float", ErrInvalidFilter, raw)
		}
		return n, nil
	case TypeBoolean:
		return strings.TrimSpace(raw) == "true", nil
	case TypeDate:
		d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a Date (YYYY-MM-DD)", ErrInvalidFilter, raw)
		}
		return d, nil
	case TypeDateTime:
		d, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a DateTime (RFC 3339)", ErrInvalidFilter, raw)
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: unknown value type %q", ErrInvalidFilter, t)
}

// SortField is the document field results are ordered and paged by.
func (q ListQuery) SortField() string {
	if q.Filter != nil && q.Filter.ordersByField() {
		if f, err := q.Filter.documentField(); err == nil {
			return f
		}
	}
	return DefaultSortField
}

// Match builds the selector for the patient's documents. The patient key
// always comes first so a filter can never leave the patient's scope.
func (q ListQuery) Match(key string) (bson.D, error) {
	if q.Filter != nil && q.Type != "" {
		return nil, fmt.Errorf("%w: can only filter on one field", ErrInvalidFilter)
	}
	match := bson.D{{Key: "patient", Value: key}}
	if q.Type != "" {
		match = append(match, bson.E{Key: "type", Value: q.Type})
	}
	if q.Filter != nil {
		cond, err := q.Filter.condition()
		if err != nil {
			return nil, err
		}
		match = append(match, cond)
	}
	return match, nil
}
