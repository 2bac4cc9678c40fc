package idp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/homerev/api/internal/platform/auth"
)

// DevProvider keeps accounts in memory. It stands in for the provider in
// development mode, where tokens are signed locally.
type DevProvider struct {
	mu       sync.Mutex
	accounts map[string]*Account
	roles    map[string]auth.Role
}

func NewDevProvider() *DevProvider {
	return &DevProvider{
		accounts: make(map[string]*Account),
		roles:    make(map[string]auth.Role),
	}
}

func (d *DevProvider) CreateAccount(_ context.Context, email, _, displayName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, email) {
			return "", fmt.Errorf("%w: %s", ErrAccountExists, email)
		}
	}
	uid := uuid.NewString()
	d.accounts[uid] = &Account{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		Providers:   []string{PasswordProvider},
	}
	return uid, nil
}

// Register adds an externally created account, as the sign-up hook would see
// it.
func (d *DevProvider) Register(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := a
	d.accounts[a.UID] = &cp
}

func (d *DevProvider) GetAccount(_ context.Context, uid string) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, uid)
	}
	cp := *a
	return &cp, nil
}

// SetRole accepts unknown uids: in development the therapist accounts usually
// exist only as token subjects.
func (d *DevProvider) SetRole(_ context.Context, uid string, role auth.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[uid] = role
	return nil
}

func (d *DevProvider) Role(uid string) auth.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[uid]
}

func (d *DevProvider) DeleteAccount(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.accounts, uid)
	delete(d.roles, uid)
	return nil
}
