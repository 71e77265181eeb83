package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"golang.org/x/crypto/bcrypt"
)

// MemoryDirectory is an in-memory principal directory used for tests and
// single-node deployments seeded from configuration
type MemoryDirectory struct {
	mu        sync.RWMutex
	byID      map[string]*core.Account
	byAccount map[string]string
	cost      int
}

var _ ports.PrincipalDirectory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty directory hashing passwords at cost
func NewMemoryDirectory(cost int) *MemoryDirectory {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemoryDirectory{
		byID:      make(map[string]*core.Account),
		byAccount: make(map[string]string),
		cost:      cost,
	}
}

// Add hashes password and stores the principal, replacing any previous entry
func (d *MemoryDirectory) Add(p core.Principal, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byID[p.ID]; ok {
		delete(d.byAccount, normalizeAccount(prev.Principal.AccountName))
	}
	d.byID[p.ID] = &core.Account{Principal: p, PasswordHash: string(hash)}
	d.byAccount[normalizeAccount(p.AccountName)] = p.ID
	return nil
}

// Remove deletes a principal. Tokens already issued to it stay signed but
// refresh will fail with ErrPrincipalNotFound.
func (d *MemoryDirectory) Remove(principalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if acc, ok := d.byID[principalID]; ok {
		delete(d.byAccount, normalizeAccount(acc.Principal.AccountName))
		delete(d.byID, principalID)
	}
}

func (d *MemoryDirectory) FindByAccountName(ctx context.Context, accountName string) (*core.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byAccount[normalizeAccount(accountName)]
	if !ok {
		return nil, core.ErrPrincipalNotFound
	}
	acc := *d.byID[id]
	acc.Principal.Scopes = append([]string(nil), acc.Principal.Scopes...)
	return &acc, nil
}

func (d *MemoryDirectory) FindByID(ctx context.Context, principalID string) (*core.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byID[principalID]
	if !ok {
		return nil, core.ErrPrincipalNotFound
	}
	p := acc.Principal
	p.Scopes = append([]string(nil), p.Scopes...)
	return &p, nil
}

func normalizeAccount(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
