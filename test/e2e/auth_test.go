//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuth_PublicStatus tests that status lookups work without authentication
func TestAuth_PublicStatus(t *testing.T) {
	c := newClient(testCtx.TestServer, "")

	st, err := c.Status(context.Background(), testCtx.Chain.Payers[3].Address.Hex())
	require.NoError(t, err)
	assert.Equal(t, "not_eligible", st.State)
}

// TestAuth_AdminRequiresKey tests that admin and write routes reject missing or bad keys
func TestAuth_AdminRequiresKey(t *testing.T) {
	ctx := context.Background()

	for name, key := range map[string]string{"no key": "", "bad key": "ogv_key_doesnotexist"} {
		t.Run(name, func(t *testing.T) {
			c := newClient(testCtx.TestServer, key)

			_, err := c.Mode(ctx)
			assertHTTPError(t, err, "UNAUTHORIZED")

			_, err = c.ListWallets(ctx)
			assertHTTPError(t, err, "UNAUTHORIZED")

			_, err = c.Reconcile(ctx)
			assertHTTPError(t, err, "UNAUTHORIZED")
		})
	}
}

// TestAuth_RevokedKey tests that a revoked key stops working
func TestAuth_RevokedKey(t *testing.T) {
	ctx := context.Background()
	key := createTestAPIKey(t, testCtx.Store, "test-revoke")
	c := newClient(testCtx.TestServer, key)

	_, err := c.Mode(ctx)
	require.NoError(t, err)

	keys, err := testCtx.Store.ListAPIKeys(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		if k.Name == "test-revoke" {
			require.NoError(t, testCtx.Store.RevokeAPIKey(ctx, k.ID))
		}
	}

	_, err = c.Mode(ctx)
	assertHTTPError(t, err, "UNAUTHORIZED")
}
