package graph

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2"
	gqlast "github.com/vektah/gqlparser/v2/ast"

	"github.com/homerev/api/internal/platform/authz"
)

//go:embed schema.graphql
var schemaSDL string

// IntrospectionOperation is the operation name GraphQL tooling uses for
// schema discovery.
const IntrospectionOperation = "IntrospectionQuery"

// ProjectTypeEnum is the enum whose values are loaded at startup.
const ProjectTypeEnum = "ProjectType"

var enumName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

var (
	ErrMutationNotAllowed  = errors.New("mutations are only accepted over POST")
	ErrIntrospectionDenied = errors.New("introspection is disabled")
)

// SDL returns the schema document the server is built from.
func SDL() string { return schemaSDL }

// LoadSchema parses and validates the embedded schema document.
func LoadSchema() (*gqlast.Schema, error) {
	doc, err := gqlparser.LoadSchema(&gqlast.Source{Name: "schema.graphql", Input: schemaSDL})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return doc, nil
}

type Config struct {
	Users   UserService
	Medical MedicalService
	Oracle  authz.RelationshipOracle
	// ProjectTypes replaces the values of the ProjectType enum.
	ProjectTypes  []string
	Introspection bool
	Logger        zerolog.Logger
	Observers     []authz.Observer
}

// Executor runs GraphQL operations against the guarded schema.
type Executor struct {
	schema        graphql.Schema
	engine        *authz.Engine
	introspection bool
	logger        zerolog.Logger
}

// Request is a GraphQL operation as sent by clients.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// NewExecutor builds the schema, installs the field guards derived from the
// @auth directives and wraps every resolver with error normalization.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("a relationship oracle is required")
	}
	doc, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	table, err := authz.BuildTable(doc)
	if err != nil {
		return nil, err
	}

	projectTypes := make([]string, 0, len(cfg.ProjectTypes))
	for _, pt := range cfg.ProjectTypes {
		if !enumName.MatchString(pt) {
			cfg.Logger.Warn().Str("project_type", pt).Msg("skipping project type that is not a valid enum value")
			continue
		}
		projectTypes = append(projectTypes, pt)
	}

	r := &resolver{users: cfg.Users, medical: cfg.Medical}
	schema, err := buildSchema(doc, buildOptions{
		scalars: map[string]*graphql.Scalar{
			"JSON":     JSONScalar,
			"Date":     DateScalar,
			"DateTime": DateTimeScalar,
		},
		resolvers:  r.resolvers(),
		enumValues: map[string][]string{ProjectTypeEnum: projectTypes},
	})
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	opts := []authz.Option{authz.WithLogger(cfg.Logger)}
	for _, o := range cfg.Observers {
		opts = append(opts, authz.WithObserver(o))
	}
	engine := authz.NewEngine(table, cfg.Oracle, opts...)
	if _, err := engine.Install(&schema); err != nil {
		return nil, fmt.Errorf("install field guards: %w", err)
	}
	wrapResolvers(&schema, cfg.Logger)

	return &Executor{
		schema:        schema,
		engine:        engine,
		introspection: cfg.Introspection,
		logger:        cfg.Logger,
	}, nil
}

func wrapResolvers(schema *graphql.Schema, logger zerolog.Logger) {
	for name, t := range schema.TypeMap() {
		obj, ok := t.(*graphql.Object)
		if !ok || strings.HasPrefix(name, "__") {
			continue
		}
		for fieldName, def := range obj.Fields() {
			coord := authz.Coordinate{Type: name, Field: fieldName}
			def.Resolve = normalize(logger, coord.String())(def.Resolve)
		}
	}
}

// Table returns the access requirements in force.
func (e *Executor) Table() authz.Table { return e.engine.Table() }

// Schema returns the executable schema.
func (e *Executor) Schema() *graphql.Schema { return &e.schema }

// Execute runs req. With readOnly set, mutations are refused.
func (e *Executor) Execute(ctx context.Context, req Request, readOnly bool) *graphql.Result {
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(req.Query), Name: "GraphQL request"}),
	})
	if err != nil {
		return &graphql.Result{Errors: gqlerrors.FormatErrors(err)}
	}
	if readOnly && hasMutation(doc, req.OperationName) {
		return rejected(&Error{Code: CodeBadUserInput, Message: ErrMutationNotAllowed.Error(), Cause: ErrMutationNotAllowed})
	}
	if !e.introspection && usesIntrospection(doc) {
		return rejected(&Error{Code: CodeForbidden, Message: ErrIntrospectionDenied.Error(), Cause: ErrIntrospectionDenied})
	}

	return graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

func rejected(err *Error) *graphql.Result {
	return &graphql.Result{Errors: []gqlerrors.FormattedError{{
		Message:    err.Message,
		Extensions: err.Extensions(),
	}}}
}

func hasMutation(doc *ast.Document, operationName string) bool {
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok || op.Operation != ast.OperationTypeMutation {
			continue
		}
		if operationName == "" || (op.Name != nil && op.Name.Value == operationName) {
			return true
		}
	}
	return false
}

// usesIntrospection reports whether any selection in the document asks for
// __schema or __type.
func usesIntrospection(doc *ast.Document) bool {
	var walk func(set *ast.SelectionSet) bool
	walk = func(set *ast.SelectionSet) bool {
		if set == nil {
			return false
		}
		for _, sel := range set.Selections {
			switch s := sel.(type) {
			case *ast.Field:
				if s.Name != nil && (s.Name.Value == "__schema" || s.Name.Value == "__type") {
					return true
				}
				if walk(s.SelectionSet) {
					return true
				}
			case *ast.InlineFragment:
				if walk(s.SelectionSet) {
					return true
				}
			}
		}
		return false
	}
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if walk(d.SelectionSet) {
				return true
			}
		case *ast.FragmentDefinition:
			if walk(d.SelectionSet) {
				return true
			}
		}
	}
	return false
}
