package authz

import (
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/homerev/api/internal/platform/auth"
)

// DirectiveName is the schema directive carrying access requirements:
//
//	directive @auth(requires: [Role]) on OBJECT | FIELD_DEFINITION
const DirectiveName = "auth"

const requiresArg = "requires"

// AccessOrigin tells a guard how the field was reached.
type AccessOrigin uint8

const (
	// OriginRoot marks fields of the Query and Mutation types. These are the
	// entry points where the caller names a target identity.
	OriginRoot AccessOrigin = iota
	// OriginNested marks fields reached from an already resolved parent object.
	OriginNested
)

func (o AccessOrigin) String() string {
	if o == OriginRoot {
		return "root"
	}
	return "nested"
}

// AccessRequirement is the set of roles allowed to resolve a field.
type AccessRequirement struct {
	AllowedRoles auth.RoleSet
}

// Coordinate addresses one field of one object type.
type Coordinate struct {
	Type  string
	Field string
}

func (c Coordinate) String() string { return c.Type + "." + c.Field }

// Table maps schema coordinates to their effective requirement. Fields absent
// from the table resolve unguarded. A Table is built once and only read after.
type Table map[Coordinate]AccessRequirement

// Lookup returns the effective requirement of typeName.fieldName.
func (t Table) Lookup(typeName, fieldName string) (AccessRequirement, bool) {
	req, ok := t[Coordinate{Type: typeName, Field: fieldName}]
	return req, ok
}

// Entry is one row of a Table, used for listings.
type Entry struct {
	Coordinate   string   `json:"field"`
	AllowedRoles []string `json:"allowed_roles"`
}

// Entries returns the table sorted by coordinate.
func (t Table) Entries() []Entry {
	out := make([]Entry, 0, len(t))
	for coord, req := range t {
		members := req.AllowedRoles.Members()
		roles := make([]string, len(members))
		for i, r := range members {
			roles[i] = r.String()
		}
		out = append(out, Entry{Coordinate: coord.String(), AllowedRoles: roles})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coordinate < out[j].Coordinate })
	return out
}

// BuildTable walks every object type of the parsed schema and resolves the
// effective @auth requirement of each field. A field-level directive replaces
// the type-level one; it does not merge with it.
func BuildTable(schema *ast.Schema) (Table, error) {
	table := make(Table)
	for _, def := range schema.Types {
		if def.Kind != ast.Object || def.BuiltIn {
			continue
		}

		typeReq, typeGuarded, err := requirementOf(def.Directives)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", def.Name, err)
		}

		for _, field := range def.Fields {
			if len(field.Name) > 1 && field.Name[:2] == "__" {
				continue
			}
			req, guarded, err := requirementOf(field.Directives)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", def.Name, field.Name, err)
			}
			if !guarded {
				req, guarded = typeReq, typeGuarded
			}
			if guarded {
				table[Coordinate{Type: def.Name, Field: field.Name}] = req
			}
		}
	}
	return table, nil
}

func requirementOf(directives ast.DirectiveList) (AccessRequirement, bool, error) {
	d := directives.ForName(DirectiveName)
	if d == nil {
		return AccessRequirement{}, false, nil
	}
	arg := d.Arguments.ForName(requiresArg)
	if arg == nil || arg.Value == nil {
		return AccessRequirement{}, false, fmt.Errorf("@%s without %s argument", DirectiveName, requiresArg)
	}

	var names []string
	switch arg.Value.Kind {
	case ast.ListValue:
		for _, child := range arg.Value.Children {
			names = append(names, child.Value.Raw)
		}
	case ast.EnumValue, ast.StringValue:
		names = append(names, arg.Value.Raw)
	default:
		return AccessRequirement{}, false, fmt.Errorf("@%s(%s:) must be a list of roles", DirectiveName, requiresArg)
	}

	roles := make([]auth.Role, 0, len(names))
	for _, name := range names {
		r, err := auth.ParseRole(name)
		if err != nil {
			return AccessRequirement{}, false, err
		}
		roles = append(roles, r)
	}
	// An empty list still guards the field: nobody may resolve it.
	return AccessRequirement{AllowedRoles: auth.NewRoleSet(roles...)}, true, nil
}
