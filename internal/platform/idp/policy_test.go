package idp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
)

const suffix = "@student.uhasselt.be"

func TestSignUpPolicy_Apply(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    Outcome
		role    auth.Role
		kept    bool
	}{
		{
			name:    "password accounts are ignored",
			account: Account{UID: "p", Email: "someone@gmail.com", Providers: []string{"password"}},
			want:    OutcomeIgnored,
			kept:    true,
		},
		{
			name:    "verified student",
			account: Account{UID: "s", Email: "jan.peeters@STUDENT.uhasselt.be", EmailVerified: true, Providers: []string{"google.com"}},
			want:    OutcomeStudent,
			role:    auth.RoleStudent,
			kept:    true,
		},
		{
			name:    "unverified student address",
			account: Account{UID: "u", Email: "jan@student.uhasselt.be", Providers: []string{"google.com"}},
			want:    OutcomeDeleted,
		},
		{
			name:    "other domain",
			account: Account{UID: "o", Email: "jan@uhasselt.be", EmailVerified: true, Providers: []string{"microsoft.com"}},
			want:    OutcomeDeleted,
		},
		{
			name:    "no provider",
			account: Account{UID: "n", Email: "n@student.uhasselt.be"},
			want:    OutcomeDeleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewDevProvider()
			dev.Register(tt.account)
			p := NewSignUpPolicy(dev, suffix, zerolog.Nop())

			got, err := p.Apply(context.Background(), tt.account)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if dev.Role(tt.account.UID) != tt.role {
				t.Errorf("expected role %s, got %s", tt.role, dev.Role(tt.account.UID))
			}
			_, err = dev.GetAccount(context.Background(), tt.account.UID)
			if kept := err == nil; kept != tt.kept {
				t.Errorf("expected kept=%v, got %v", tt.kept, kept)
			}
		})
	}
}

func TestSignUpPolicy_NoSuffixRejectsEveryone(t *testing.T) {
	dev := NewDevProvider()
	a := Account{UID: "s", Email: "s@student.uhasselt.be", EmailVerified: true, Providers: []string{"google.com"}}
	got, _ := NewSignUpPolicy(dev, "", zerolog.Nop()).Apply(context.Background(), a)
	if got != OutcomeDeleted {
		t.Errorf("expected deleted, got %s", got)
	}
}

type failingManager struct{ *DevProvider }

func (failingManager) SetRole(context.Context, string, auth.Role) error {
	return ErrUpstream
}

func TestSignUpPolicy_PropagatesFailure(t *testing.T) {
	p := NewSignUpPolicy(failingManager{NewDevProvider()}, suffix, zerolog.Nop())
	a := Account{UID: "s", Email: "s" + suffix, EmailVerified: true, Providers: []string{"google.com"}}
	if _, err := p.Apply(context.Background(), a); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func newHookServer(secret string) (*echo.Echo, *DevProvider) {
	dev := NewDevProvider()
	e := echo.New()
	h := NewHookHandler(NewSignUpPolicy(dev, suffix, zerolog.Nop()), secret, zerolog.Nop())
	h.RegisterRoutes(e.Group("/hooks"))
	return e, dev
}

func postHook(e *echo.Echo, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hooks/account-created", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(HookSecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHookHandler_AssignsStudent(t *testing.T) {
	e, dev := newHookServer("hook-secret")
	rec := postHook(e, "hook-secret",
		`{"uid":"s1","email":"s1@student.uhasselt.be","emailVerified":true,"providers":["google.com"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"outcome":"student"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if dev.Role("s1") != auth.RoleStudent {
		t.Errorf("expected student role, got %s", dev.Role("s1"))
	}
}

func TestHookHandler_RejectsBadSecret(t *testing.T) {
	e, _ := newHookServer("hook-secret")
	for _, secret := range []string{"", "wrong"} {
		rec := postHook(e, secret, `{"uid":"s1"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: expected 401, got %d", secret, rec.Code)
		}
	}
}

func TestHookHandler_Unconfigured(t *testing.T) {
	e, _ := newHookServer("")
	rec := postHook(e, "anything", `{"uid":"s1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHookHandler_RequiresUID(t *testing.T) {
	e, _ := newHookServer("hook-secret")
	rec := postHook(e, "hook-secret", `{"email":"x@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDevProvider_CreateAccount(t *testing.T) {
	dev := NewDevProvider()
	ctx := context.Background()
	uid, err := dev.CreateAccount(ctx, "a@example.com", "pw1234", "A")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	a, err := dev.GetAccount(ctx, uid)
	if err != nil || a.FirstProvider() != PasswordProvider {
		t.Errorf("unexpected account %+v (%v)", a, err)
	}
	if _, err := dev.CreateAccount(ctx, "A@example.com", "pw1234", "A"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
}
