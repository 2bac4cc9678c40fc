package graph

import (
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/domain/medical"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/internal/platform/idp"
	"github.com/homerev/api/pkg/pagination"
)

// Error codes reported in extensions.code.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeUpstream        = "UPSTREAM_FAILURE"
	CodeInternal        = "INTERNAL"
)

const internalMessage = "internal server error"

// Error is the client facing form of a resolver failure. Its message is safe
// to return; Cause is kept for logs only.
type Error struct {
	Code    string
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Extensions implements gqlerrors.ExtendedError.
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code}
	if e.Reason != "" {
		ext["reason"] = e.Reason
	}
	return ext
}

// Classify maps an error from any layer to its client facing form.
func Classify(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		return &Error{Code: CodeForbidden, Reason: denied.Reason.String(), Message: "forbidden", Cause: err}
	case errors.Is(err, auth.ErrMissingCredential):
		return &Error{Code: CodeUnauthenticated, Message: "authentication required", Cause: err}
	case errors.Is(err, auth.ErrInvalidCredential):
		return &Error{Code: CodeUnauthenticated, Message: "invalid credential", Cause: err}
	case errors.Is(err, users.ErrPatientNotFound),
		errors.Is(err, users.ErrTherapistNotFound),
		errors.Is(err, medical.ErrPatientNotFound),
		errors.Is(err, medical.ErrTaskNotFound),
		errors.Is(err, medical.ErrTodoNotFound),
		errors.Is(err, idp.ErrAccountNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error(), Cause: err}
	case errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, users.ErrCursorNotFound),
		errors.Is(err, users.ErrAlreadyExists),
		errors.Is(err, idp.ErrAccountExists),
		errors.Is(err, medical.ErrInvalidInput),
		errors.Is(err, medical.ErrInvalidFilter),
		errors.Is(err, medical.ErrCursorNotFound),
		errors.Is(err, pagination.ErrInvalidPerPage):
		return &Error{Code: CodeBadUserInput, Message: err.Error(), Cause: err}
	case errors.Is(err, idp.ErrUpstream),
		errors.Is(err, users.ErrStore),
		errors.Is(err, medical.ErrStore):
		return &Error{Code: CodeUpstream, Message: "upstream service unavailable", Cause: err}
	}
	return &Error{Code: CodeInternal, Message: internalMessage, Cause: err}
}

func badInput(msg string) *Error {
	return &Error{Code: CodeBadUserInput, Message: msg}
}

// normalize is the outermost decorator of every resolver. It turns whatever
// the resolver chain returned into an *Error so the executor can report a
// stable code.
func normalize(logger zerolog.Logger, field string) authz.Guard {
	return func(next graphql.FieldResolveFn) graphql.FieldResolveFn {
		if next == nil {
			next = graphql.DefaultResolveFn
		}
		return func(p graphql.ResolveParams) (interface{}, error) {
			out, err := next(p)
			if err == nil {
				return out, nil
			}
			ge := Classify(err)
			switch ge.Code {
			case CodeInternal, CodeUpstream:
				logger.Error().Err(err).Str("field", field).Str("code", ge.Code).Msg("resolver failed")
			}
			return nil, ge
		}
	}
}
