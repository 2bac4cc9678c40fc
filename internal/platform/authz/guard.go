package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
)

// TargetArg is the field argument naming the identity a root field acts on.
const TargetArg = "id"

// Guard decorates a resolver.
type Guard func(next graphql.FieldResolveFn) graphql.FieldResolveFn

// Chain composes guards so that the first one runs outermost.
func Chain(guards ...Guard) Guard {
	return func(next graphql.FieldResolveFn) graphql.FieldResolveFn {
		for i := len(guards) - 1; i >= 0; i-- {
			next = guards[i](next)
		}
		return next
	}
}

// Observer receives every decision taken by the engine.
type Observer interface {
	ObserveDecision(field string, origin AccessOrigin, d Decision)
}

// Engine installs field guards derived from a requirement Table.
type Engine struct {
	table     Table
	oracle    RelationshipOracle
	logger    zerolog.Logger
	observers []Observer
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func NewEngine(table Table, oracle RelationshipOracle, opts ...Option) *Engine {
	e := &Engine{table: table, oracle: oracle, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the requirement table the engine enforces.
func (e *Engine) Table() Table { return e.table }

// Guard returns the decorator enforcing req on the field at coord.
func (e *Engine) Guard(coord Coordinate, req AccessRequirement, origin AccessOrigin) Guard {
	field := coord.String()
	return func(next graphql.FieldResolveFn) graphql.FieldResolveFn {
		if next == nil {
			next = graphql.DefaultResolveFn
		}
		return func(p graphql.ResolveParams) (interface{}, error) {
			principal, ok := auth.PrincipalFromContext(p.Context)
			if !ok {
				return nil, auth.ErrMissingCredential
			}
			target, _ := p.Args[TargetArg].(string)

			d := Decide(p.Context, Request{
				Principal:   principal,
				Requirement: req,
				Origin:      origin,
				Target:      target,
			}, e.oracle)
			for _, o := range e.observers {
				o.ObserveDecision(field, origin, d)
			}
			if !d.Allowed {
				ev := e.logger.Warn().
					Str("field", field).
					Str("origin", origin.String()).
					Str("principal", principal.Identity).
					Str("role", principal.Role.String()).
					Str("reason", d.Reason.String())
				if target != "" {
					ev = ev.Str("target", target)
				}
				if d.Err != nil {
					ev = ev.Err(d.Err)
				}
				ev.Msg("field access denied")
				return nil, &DeniedError{Reason: d.Reason, Field: field, Cause: d.Err}
			}
			return next(p)
		}
	}
}

// Install wraps every field of schema that has an entry in the table. Fields
// of the query and mutation types are guarded as root access, all others as
// nested access. It fails if the table names a field the schema lacks.
func (e *Engine) Install(schema *graphql.Schema) (int, error) {
	roots := make(map[string]bool, 2)
	if q := schema.QueryType(); q != nil {
		roots[q.Name()] = true
	}
	if m := schema.MutationType(); m != nil {
		roots[m.Name()] = true
	}

	seen := make(map[Coordinate]bool, len(e.table))
	for name, t := range schema.TypeMap() {
		obj, ok := t.(*graphql.Object)
		if !ok || strings.HasPrefix(name, "__") {
			continue
		}
		origin := OriginNested
		if roots[name] {
			origin = OriginRoot
		}
		for fieldName, def := range obj.Fields() {
			coord := Coordinate{Type: name, Field: fieldName}
			req, ok := e.table[coord]
			if !ok {
				continue
			}
			def.Resolve = e.Guard(coord, req, origin)(def.Resolve)
			seen[coord] = true
		}
	}

	var missing []string
	for coord := range e.table {
		if !seen[coord] {
			missing = append(missing, coord.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return len(seen), fmt.Errorf("requirements for unknown fields: %s", strings.Join(missing, ", "))
	}

	e.logger.Debug().Int("guarded_fields", len(seen)).Msg("field guards installed")
	return len(seen), nil
}
