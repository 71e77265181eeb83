package directory

import (
	"context"
	"testing"

	"github.com/layer-3/gatekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMemoryDirectoryLookups(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(bcrypt.MinCost)
	require.NoError(t, d.Add(core.Principal{ID: "1", AccountName: "Alice", Scopes: []string{"orders:read"}}, "s3cret"))

	acc, err := d.FindByAccountName(ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, "1", acc.Principal.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("s3cret")))

	p, err := d.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read"}, p.Scopes)

	_, err = d.FindByAccountName(ctx, "bob")
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)
}

func TestMemoryDirectoryRemove(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(bcrypt.MinCost)
	require.NoError(t, d.Add(core.Principal{ID: "1", AccountName: "alice"}, "pw"))

	d.Remove("1")

	_, err := d.FindByID(ctx, "1")
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)
	_, err = d.FindByAccountName(ctx, "alice")
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)
}

func TestMemoryDirectoryRename(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(bcrypt.MinCost)
	require.NoError(t, d.Add(core.Principal{ID: "1", AccountName: "alice"}, "pw"))
	require.NoError(t, d.Add(core.Principal{ID: "1", AccountName: "alicia"}, "pw"))

	_, err := d.FindByAccountName(ctx, "alice")
	assert.ErrorIs(t, err, core.ErrPrincipalNotFound)
	_, err = d.FindByAccountName(ctx, "alicia")
	assert.NoError(t, err)
}
