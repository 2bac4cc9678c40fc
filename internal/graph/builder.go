package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
	gqlast "github.com/vektah/gqlparser/v2/ast"
)

// ResolverMap binds resolvers by type name and field name. Fields without an
// entry use graphql.DefaultResolveFn.
type ResolverMap map[string]map[string]graphql.FieldResolveFn

type buildOptions struct {
	scalars   map[string]*graphql.Scalar
	resolvers ResolverMap
	// enumValues replaces the values of the named enums.
	enumValues map[string][]string
}

// builder turns a parsed SDL document into an executable graphql-go schema.
type builder struct {
	doc   *gqlast.Schema
	opts  buildOptions
	named map[string]graphql.Type
}

func buildSchema(doc *gqlast.Schema, opts buildOptions) (graphql.Schema, error) {
	b := &builder{
		doc:  doc,
		opts: opts,
		named: map[string]graphql.Type{
			"String":  graphql.String,
			"Int":     graphql.Int,
			"Float":   graphql.Float,
			"Boolean": graphql.Boolean,
			"ID":      graphql.ID,
		},
	}
	return b.build()
}

func (b *builder) build() (graphql.Schema, error) {
	names := make([]string, 0, len(b.doc.Types))
	for name := range b.doc.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	var types []graphql.Type
	for _, name := range names {
		def := b.doc.Types[name]
		if def.BuiltIn {
			continue
		}
		var t graphql.Type
		switch def.Kind {
		case gqlast.Scalar:
			s, ok := b.opts.scalars[name]
			if !ok {
				return graphql.Schema{}, fmt.Errorf("no implementation for scalar %s", name)
			}
			t = s
		case gqlast.Enum:
			t = b.enum(def)
		case gqlast.InputObject:
			t = b.input(def)
		case gqlast.Object:
			t = b.object(def)
		default:
			return graphql.Schema{}, fmt.Errorf("type %s: %s types are not supported", name, strings.ToLower(string(def.Kind)))
		}
		b.named[name] = t
		types = append(types, t)
	}

	for typeName, fields := range b.opts.resolvers {
		def, ok := b.doc.Types[typeName]
		if !ok || def.Kind != gqlast.Object {
			return graphql.Schema{}, fmt.Errorf("resolvers bound to unknown type %s", typeName)
		}
		for fieldName := range fields {
			if def.Fields.ForName(fieldName) == nil {
				return graphql.Schema{}, fmt.Errorf("resolver bound to unknown field %s.%s", typeName, fieldName)
			}
		}
	}

	cfg := graphql.SchemaConfig{Types: types}
	if b.doc.Query != nil {
		cfg.Query, _ = b.named[b.doc.Query.Name].(*graphql.Object)
	}
	if b.doc.Mutation != nil {
		cfg.Mutation, _ = b.named[b.doc.Mutation.Name].(*graphql.Object)
	}
	return graphql.NewSchema(cfg)
}

func (b *builder) enum(def *gqlast.Definition) *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	if override, ok := b.opts.enumValues[def.Name]; ok && len(override) > 0 {
		for _, v := range override {
			values[v] = &graphql.EnumValueConfig{Value: v}
		}
	} else {
		for _, v := range def.EnumValues {
			values[v.Name] = &graphql.EnumValueConfig{Value: v.Name, Description: v.Description}
		}
	}
	return graphql.NewEnum(graphql.EnumConfig{Name: def.Name, Description: def.Description, Values: values})
}

func (b *builder) input(def *gqlast.Definition) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, f := range def.Fields {
				fields[f.Name] = &graphql.InputObjectFieldConfig{
					Type:         b.inputRef(f.Type),
					DefaultValue: defaultOf(f.DefaultValue),
					Description:  f.Description,
				}
			}
			return fields
		}),
	})
}

func (b *builder) object(def *gqlast.Definition) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range def.Fields {
				if strings.HasPrefix(f.Name, "__") {
					continue
				}
				args := graphql.FieldConfigArgument{}
				for _, a := range f.Arguments {
					args[a.Name] = &graphql.ArgumentConfig{
						Type:         b.inputRef(a.Type),
						DefaultValue: defaultOf(a.DefaultValue),
						Description:  a.Description,
					}
				}
				fields[f.Name] = &graphql.Field{
					Name:        f.Name,
					Type:        b.outputRef(f.Type),
					Args:        args,
					Description: f.Description,
					Resolve:     b.opts.resolvers[def.Name][f.Name],
				}
			}
			return fields
		}),
	})
}

func (b *builder) typeRef(t *gqlast.Type) graphql.Type {
	var out graphql.Type
	if t.Elem != nil {
		out = graphql.NewList(b.typeRef(t.Elem))
	} else {
		out = b.named[t.NamedType]
	}
	if t.NonNull {
		out = graphql.NewNonNull(out)
	}
	return out
}

func (b *builder) inputRef(t *gqlast.Type) graphql.Input {
	in, _ := b.typeRef(t).(graphql.Input)
	return in
}

func (b *builder) outputRef(t *gqlast.Type) graphql.Output {
	out, _ := b.typeRef(t).(graphql.Output)
	return out
}

func defaultOf(v *gqlast.Value) interface{} {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}
