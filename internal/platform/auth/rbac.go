package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that only lets principals holding one of the
// given roles through. It must run after JWTMiddleware. Unlike the GraphQL
// field guards there is no admin bypass: admin has to be listed.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	allowed := NewRoleSet(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingCredential.Error())
			}
			if !allowed.Contains(p.Role) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: one of %s", allowed))
			}
			return next(c)
		}
	}
}
