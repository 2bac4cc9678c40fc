// Package idp manages login accounts at the external identity provider: account
// creation and removal, the role claim carried in issued tokens, and the
// policy applied to accounts created through self sign-up.
package idp

import (
	"context"
	"errors"

	"github.com/homerev/api/internal/platform/auth"
)

var (
	// ErrUpstream wraps every failure to reach or understand the provider.
	ErrUpstream        = errors.New("identity provider failure")
	ErrAccountExists   = errors.New("an account with this email already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// PasswordProvider is the sign-in provider of accounts created with an email
// and password by the gateway itself.
const PasswordProvider = "password"

// Account is a login account as reported by the provider.
type Account struct {
	UID           string   `json:"uid"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"emailVerified"`
	DisplayName   string   `json:"displayName,omitempty"`
	Providers     []string `json:"providers"`
}

// FirstProvider returns the provider the account was created with.
func (a Account) FirstProvider() string {
	if len(a.Providers) == 0 {
		return ""
	}
	return a.Providers[0]
}

// Manager is the set of provider operations the gateway uses.
type Manager interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	GetAccount(ctx context.Context, uid string) (*Account, error)
	SetRole(ctx context.Context, uid string, role auth.Role) error
	DeleteAccount(ctx context.Context, uid string) error
}
