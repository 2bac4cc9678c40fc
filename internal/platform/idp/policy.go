package idp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
)

// Outcome is what the sign-up policy did with an account.
type Outcome uint8

const (
	OutcomeIgnored Outcome = iota
	OutcomeStudent
	OutcomeDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStudent:
		return "student"
	case OutcomeDeleted:
		return "deleted"
	}
	return "ignored"
}

// SignUpPolicy decides the fate of self-registered accounts. Accounts created
// with a password were made by the gateway for a patient and are left alone.
// Of the rest, only verified institutional student addresses may stay and get
// the student role; every other account is deleted.
type SignUpPolicy struct {
	accounts      Manager
	studentSuffix string
	logger        zerolog.Logger
}

func NewSignUpPolicy(accounts Manager, studentSuffix string, logger zerolog.Logger) *SignUpPolicy {
	return &SignUpPolicy{
		accounts:      accounts,
		studentSuffix: strings.ToLower(strings.TrimSpace(studentSuffix)),
		logger:        logger,
	}
}

func (p *SignUpPolicy) isStudent(a Account) bool {
	if p.studentSuffix == "" || !a.EmailVerified {
		return false
	}
	return strings.HasSuffix(strings.ToLower(a.Email), p.studentSuffix)
}

func (p *SignUpPolicy) Apply(ctx context.Context, a Account) (Outcome, error) {
	if a.UID == "" {
		return OutcomeIgnored, fmt.Errorf("account has no uid")
	}
	if a.FirstProvider() == PasswordProvider {
		return OutcomeIgnored, nil
	}

	if p.isStudent(a) {
		if err := p.accounts.SetRole(ctx, a.UID, auth.RoleStudent); err != nil {
			return OutcomeIgnored, fmt.Errorf("assign student role: %w", err)
		}
		p.logger.Info().Str("account", a.UID).Msg("student role assigned")
		return OutcomeStudent, nil
	}

	if err := p.accounts.DeleteAccount(ctx, a.UID); err != nil {
		return OutcomeIgnored, fmt.Errorf("delete account: %w", err)
	}
	p.logger.Info().Str("account", a.UID).Str("provider", a.FirstProvider()).Msg("self sign-up rejected, account deleted")
	return OutcomeDeleted, nil
}
