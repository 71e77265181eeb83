package ports

import (
	"context"

	"github.com/layer-3/gatekeeper/core"
)

// PrincipalDirectory is the read side of the external user store.
// Both lookups return core.ErrPrincipalNotFound for unknown principals.
type PrincipalDirectory interface {
	FindByAccountName(ctx context.Context, accountName string) (*core.Account, error)
	FindByID(ctx context.Context, principalID string) (*core.Principal, error)
}
