package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/homerev/api/internal/platform/auth"
)

var (
	ErrRoleNotPermitted        = errors.New("role not permitted")
	ErrNotAuthorizedForTarget  = errors.New("not authorized for target")
	ErrRelationshipCheckFailed = errors.New("relationship check failed")
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonRoleNotPermitted
	ReasonNotAuthorizedForTarget
	// ReasonRelationshipCheckFailed is a denial caused by an oracle error.
	ReasonRelationshipCheckFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonRoleNotPermitted:
		return "RoleNotPermitted"
	case ReasonNotAuthorizedForTarget:
		return "NotAuthorizedForTarget"
	case ReasonRelationshipCheckFailed:
		return "RelationshipCheckFailed"
	}
	return "None"
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonRoleNotPermitted:
		return ErrRoleNotPermitted
	case ReasonNotAuthorizedForTarget:
		return ErrNotAuthorizedForTarget
	case ReasonRelationshipCheckFailed:
		return ErrRelationshipCheckFailed
	}
	return nil
}

// Request is the input of one authorization decision.
type Request struct {
	Principal   auth.Principal
	Requirement AccessRequirement
	Origin      AccessOrigin
	// Target is the identity named by the field's id argument, if any.
	Target string
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Err is the oracle failure behind ReasonRelationshipCheckFailed.
	Err error
}

func allow() Decision { return Decision{Allowed: true} }

func deny(r Reason, err error) Decision { return Decision{Reason: r, Err: err} }

// Error returns the denial as an error, or nil when the decision allows.
func (d Decision) Error() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason, Cause: d.Err}
}

// Decide evaluates a field access. The role check always applies. The
// relationship check only applies to root access naming a target other than
// the caller, and only for patients and therapists; other permitted roles
// are scoped by how their queries are built. Oracle failures deny.
func Decide(ctx context.Context, req Request, oracle RelationshipOracle) Decision {
	p := req.Principal
	if !req.Requirement.AllowedRoles.Contains(p.Role) {
		return deny(ReasonRoleNotPermitted, nil)
	}
	if req.Origin != OriginRoot || req.Target == "" || req.Target == p.Identity {
		return allow()
	}

	var (
		related bool
		err     error
	)
	switch p.Role {
	case auth.RolePatient:
		// the target has to be one of the caller's therapists
		related, err = oracle.IsTherapistOfPatient(ctx, req.Target, p.Identity)
	case auth.RoleTherapist:
		// the target has to be one of the caller's patients
		related, err = oracle.IsTherapistOfPatient(ctx, p.Identity, req.Target)
	default:
		return allow()
	}
	if err != nil {
		return deny(ReasonRelationshipCheckFailed, err)
	}
	if !related {
		return deny(ReasonNotAuthorizedForTarget, nil)
	}
	return allow()
}

// DeniedError is returned by guarded resolvers that were not allowed to run.
// It matches the sentinel of its reason and the oracle error, if any, through
// errors.Is.
type DeniedError struct {
	Reason Reason
	Field  string
	Cause  error
}

func (e *DeniedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("forbidden: %s on %s", e.Reason, e.Field)
	}
	return "forbidden: " + e.Reason.String()
}

func (e *DeniedError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Reason.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Deny builds a DeniedError for checks made outside the guard, such as
// resolvers that scope a nested list to the caller.
func Deny(reason Reason, field string) error {
	return &DeniedError{Reason: reason, Field: field}
}
