package graph

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/middleware"
)

// Handler serves the GraphQL endpoint. Mutations are only accepted over POST.
type Handler struct {
	exec   *Executor
	logger zerolog.Logger
}

func NewHandler(exec *Executor, logger zerolog.Logger) *Handler {
	return &Handler{exec: exec, logger: logger}
}

// RegisterRoutes mounts the endpoint at the group's root. The group is
// expected to run the JWT middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Post)
	g.GET("", h.Get)
}

func (h *Handler) Post(c echo.Context) error {
	var req Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return h.reject(c, http.StatusBadRequest, badInput("request body must be a JSON GraphQL request"))
	}
	return h.serve(c, req, false)
}

// Get accepts query, operationName and variables (JSON encoded) as query
// parameters.
func (h *Handler) Get(c echo.Context) error {
	req := Request{
		Query:         c.QueryParam("query"),
		OperationName: c.QueryParam("operationName"),
	}
	if raw := c.QueryParam("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return h.reject(c, http.StatusBadRequest, badInput("variables must be a JSON object"))
		}
	}
	return h.serve(c, req, true)
}

func (h *Handler) serve(c echo.Context, req Request, readOnly bool) error {
	if req.Query == "" {
		return h.reject(c, http.StatusBadRequest, badInput("query is required"))
	}
	ctx := c.Request().Context()
	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		return AuthFailure(c, auth.ErrMissingCredential)
	}

	c.Set(middleware.OperationKey, req.OperationName)
	result := h.exec.Execute(ctx, req, readOnly)
	if len(result.Errors) > 0 {
		h.logger.Debug().
			Str("operation", req.OperationName).
			Int("errors", len(result.Errors)).
			Msg("graphql operation returned errors")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) reject(c echo.Context, status int, err *Error) error {
	return c.JSON(status, &graphql.Result{Errors: []gqlerrors.FormattedError{{
		Message:    err.Message,
		Extensions: err.Extensions(),
	}}})
}

// AuthFailure renders a rejected or missing bearer token as a GraphQL error
// with code UNAUTHENTICATED. It is the failure handler of the JWT middleware
// guarding the endpoint.
func AuthFailure(c echo.Context, err error) error {
	ge := Classify(err)
	if ge.Code != CodeUnauthenticated {
		ge = &Error{Code: CodeUnauthenticated, Message: "invalid credential", Cause: err}
	}
	return c.JSON(http.StatusUnauthorized, &graphql.Result{Errors: []gqlerrors.FormattedError{{
		Message:    ge.Message,
		Extensions: ge.Extensions(),
	}}})
}
