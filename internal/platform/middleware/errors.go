package middleware

import "github.com/labstack/echo/v4"

// graphQLError writes a transport level failure in the shape GraphQL clients
// already parse, so callers of /graphql see one error format.
func graphQLError(c echo.Context, status int, code, message string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, map[string]interface{}{
		"errors": []map[string]interface{}{{
			"message":    message,
			"extensions": map[string]string{"code": code},
		}},
	})
}
