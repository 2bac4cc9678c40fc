package idp

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HookSecretHeader carries the secret shared with the provider's event hook.
const HookSecretHeader = "X-Hook-Secret"

// HookHandler receives account lifecycle events from the provider.
type HookHandler struct {
	policy *SignUpPolicy
	secret []byte
	logger zerolog.Logger
}

func NewHookHandler(policy *SignUpPolicy, secret string, logger zerolog.Logger) *HookHandler {
	return &HookHandler{policy: policy, secret: []byte(secret), logger: logger}
}

func (h *HookHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/account-created", h.AccountCreated)
}

func (h *HookHandler) AccountCreated(c echo.Context) error {
	if len(h.secret) == 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "hook secret not configured")
	}
	got := []byte(c.Request().Header.Get(HookSecretHeader))
	if subtle.ConstantTimeCompare(got, h.secret) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid hook secret")
	}

	var a Account
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account payload")
	}
	if a.UID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "uid is required")
	}

	outcome, err := h.policy.Apply(c.Request().Context(), a)
	if err != nil {
		h.logger.Error().Err(err).Str("account", a.UID).Msg("sign-up policy failed")
		return echo.NewHTTPError(http.StatusBadGateway, "could not apply sign-up policy")
	}
	return c.JSON(http.StatusOK, map[string]string{"uid": a.UID, "outcome": outcome.String()})
}
