package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/database"
	"go-pos-billing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedTenant(t *testing.T, db *gorm.DB, merchantID, subdomain, email string) *models.Tenant {
	t.Helper()
	tn := &models.Tenant{MerchantID: merchantID, Subdomain: subdomain}
	if email != "" {
		tn.OwnerEmail = &email
	}
	require.NoError(t, db.Create(tn).Error)
	return tn
}

func TestStore_FindByIdentifier(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	seedTenant(t, db, "MID-000000000ABC", "abc", "owner@abc.io")

	tests := []struct {
		name       string
		identifier string
		found      bool
	}{
		{"merchant id", "MID-000000000ABC", true},
		{"merchant id any case", "mid-000000000abc", true},
		{"subdomain", "abc", true},
		{"subdomain upper", "ABC", true},
		{"owner email", "OWNER@abc.io", true},
		{"prefix never matches", "ab", false},
		{"suffix never matches", "bc", false},
		{"sql wildcard is literal", "a%", false},
		{"regex wildcard is literal", "a.c", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.FindByIdentifier(ctx, tt.identifier)
			require.NoError(t, err)
			if tt.found {
				require.Len(t, rows, 1)
				assert.Equal(t, "abc", rows[0].Subdomain)
			} else {
				assert.Empty(t, rows)
			}
		})
	}
}

func TestStore_EnsureTenant(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.EnsureTenant(ctx, "Chai.Point@example.com")
	require.NoError(t, err)
	assert.Regexp(t, `^MID-[0-9A-F]{12}$`, first.MerchantID)
	assert.Equal(t, "chai-point", first.Subdomain)

	again, err := store.EnsureTenant(ctx, "chai.point@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.MerchantID, again.MerchantID, "merchant id is never reissued")

	t.Run("slug collision gets a suffixed subdomain", func(t *testing.T) {
		other, err := store.EnsureTenant(ctx, "chai-point@other.org")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
		assert.Regexp(t, `^chai-point-[0-9a-f]{6}$`, other.Subdomain)
	})

	t.Run("ownerless tenant with a matching slug is never adopted", func(t *testing.T) {
		legacy := seedTenant(t, db, "MID-00000000LEGA", "corner-shop", "")

		got, err := store.EnsureTenant(ctx, "corner.shop@mail.com")
		require.NoError(t, err)
		assert.NotEqual(t, legacy.ID, got.ID)
		assert.NotEqual(t, legacy.MerchantID, got.MerchantID)
		assert.Equal(t, "corner.shop@mail.com", got.Owner())
		assert.Regexp(t, `^corner-shop-[0-9a-f]{6}$`, got.Subdomain)

		reloaded, err := store.Reload(ctx, legacy.ID)
		require.NoError(t, err)
		assert.Nil(t, reloaded.OwnerEmail, "the legacy tenant stays ownerless")
	})

	t.Run("concurrent first use converges on one tenant", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]uint, 10)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tn, err := store.EnsureTenant(ctx, "rush@hour.io")
				if assert.NoError(t, err) {
					ids[i] = tn.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestStore_OwnerlessTenants(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	a := seedTenant(t, db, "MID-00000000AAAA", "a", "")
	b := seedTenant(t, db, "MID-00000000BBBB", "b", "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.OwnerEmail)
	assert.Equal(t, "MID-00000000BBBB", ScopeKey(b), "ownerless tenants scope by merchant id")

	rows, err := store.FindByIdentifier(ctx, "b")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].ID)
}

func TestStore_AssignOwner(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	svc := auth.NewCredentialService(store)
	ctx := context.Background()

	acme := seedTenant(t, db, "MID-0000000ACME", "acme", "")
	key, err := svc.Issue(ctx, acme.ID)
	require.NoError(t, err)

	t.Run("sign-in with a matching slug cannot take over the tenant", func(t *testing.T) {
		stranger, err := store.EnsureTenant(ctx, "acme@attacker.example")
		require.NoError(t, err)
		assert.NotEqual(t, acme.ID, stranger.ID)

		_, err = svc.Rotate(ctx, stranger.ID)
		assert.ErrorIs(t, err, auth.ErrNoCredential)

		reloaded, err := store.Reload(ctx, acme.ID)
		require.NoError(t, err)
		assert.True(t, auth.VerifyKey(key.RawKey, *reloaded.APIKeyHash), "the original key still works")
	})

	t.Run("operator mapping binds the owner", func(t *testing.T) {
		got, err := store.AssignOwner(ctx, "MID-0000000ACME", " Owner@Acme.io ")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, got.ID)
		assert.Equal(t, "owner@acme.io", got.Owner())

		found, err := store.EnsureTenant(ctx, "owner@acme.io")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, found.ID)
		assert.Equal(t, "MID-0000000ACME", found.MerchantID)
	})

	t.Run("reapplying the same mapping is a no-op", func(t *testing.T) {
		got, err := store.AssignOwner(ctx, "MID-0000000ACME", "owner@acme.io")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, got.ID)
	})

	t.Run("an owned tenant is never reassigned", func(t *testing.T) {
		_, err := store.AssignOwner(ctx, "MID-0000000ACME", "someone@else.io")
		assert.ErrorIs(t, err, ErrOwnerAssigned)
	})

	t.Run("an email owns at most one tenant", func(t *testing.T) {
		seedTenant(t, db, "MID-00000000SOLO", "solo", "")
		_, err := store.AssignOwner(ctx, "MID-00000000SOLO", "owner@acme.io")
		assert.ErrorIs(t, err, ErrOwnerTaken)
	})

	t.Run("unknown merchant", func(t *testing.T) {
		_, err := store.AssignOwner(ctx, "MID-000000000000", "x@y.io")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_CredentialLifecycle(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	svc := auth.NewCredentialService(store)
	ctx := context.Background()

	tn, err := store.EnsureTenant(ctx, "keys@shop.io")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  []*auth.IssuedKey
		clashes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := svc.Issue(ctx, tn.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued = append(issued, key)
			case errors.Is(err, auth.ErrCredentialExists):
				clashes++
			}
		}()
	}
	wg.Wait()
	require.Len(t, issued, 1, "exactly one live credential")
	assert.Equal(t, 7, clashes)

	reloaded, err := store.Reload(ctx, tn.ID)
	require.NoError(t, err)
	require.True(t, reloaded.HasCredential())
	assert.True(t, auth.VerifyKey(issued[0].RawKey, *reloaded.APIKeyHash))
	assert.Equal(t, issued[0].Prefix, reloaded.APIKeyPrefix)

	rotated, err := svc.Rotate(ctx, tn.ID)
	require.NoError(t, err)
	reloaded, err = store.Reload(ctx, tn.ID)
	require.NoError(t, err)
	assert.False(t, auth.VerifyKey(issued[0].RawKey, *reloaded.APIKeyHash))
	assert.True(t, auth.VerifyKey(rotated.RawKey, *reloaded.APIKeyHash))

	require.NoError(t, svc.Revoke(ctx, tn.ID))
	reloaded, err = store.Reload(ctx, tn.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.HasCredential())

	_, err = svc.Issue(ctx, tn.ID)
	assert.NoError(t, err, "a revoked tenant may be issued a fresh key")
}
