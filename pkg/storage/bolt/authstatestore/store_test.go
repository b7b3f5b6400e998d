/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authstatestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/trustbloc/wallet-core/pkg/service/oidc4vci"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "wallet.db"), 0o600, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func testSession(sessionID string, createdAt time.Time) *oidc4vci.AuthFlowSession {
	return &oidc4vci.AuthFlowSession{
		SessionID: sessionID,
		AuthorizationData: oidc4vci.AuthorizationData{
			ClientOptions: &oidc4vci.ClientOptions{
				ClientID:    "wallet",
				RedirectURI: "https://wallet.example.com/cb",
			},
			ConfigurationIDs: []string{"eu.pid.sdjwt"},
		},
		PKCE: oidc4vci.PKCE{
			Verifier:  "verifier",
			Challenge: "challenge",
		},
		CreatedAt: createdAt,
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testSession("session-1", time.Now())))

	session, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.SessionID)
	assert.Equal(t, "wallet", session.AuthorizationData.ClientOptions.ClientID)
	assert.Equal(t, "verifier", session.PKCE.Verifier)

	require.NoError(t, store.Delete(ctx, "session-1"))

	_, err = store.Get(ctx, "session-1")
	assert.ErrorIs(t, err, oidc4vci.ErrSessionNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, oidc4vci.ErrSessionNotFound)
}

func TestStore_LastWriterWins(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()

	first := testSession("session-1", time.Now())
	first.PKCE.Verifier = "first"
	require.NoError(t, store.Store(ctx, first))

	second := testSession("session-1", time.Now())
	second.PKCE.Verifier = "second"
	require.NoError(t, store.Store(ctx, second))

	session, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "second", session.PKCE.Verifier)
}

func TestStore_TTL(t *testing.T) {
	now := time.Now()

	store, err := New(openTestDB(t),
		WithTTL(10*time.Minute),
		WithNowFunc(func() time.Time { return now }),
	)
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testSession("fresh", now.Add(-time.Minute))))
	require.NoError(t, store.Store(ctx, testSession("stale", now.Add(-time.Hour))))

	_, err = store.Get(ctx, "fresh")
	require.NoError(t, err)

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, oidc4vci.ErrSessionNotFound)

	require.NoError(t, store.DeleteExpired(ctx))

	err = store.db.View(func(tx *bolt.Tx) error {
		assert.Nil(t, tx.Bucket(bucketName).Get([]byte("stale")))
		assert.NotNil(t, tx.Bucket(bucketName).Get([]byte("fresh")))

		return nil
	})
	require.NoError(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Store(ctx, testSession("session-1", time.Now())))
	_, err = store.Get(ctx, "session-1")
	assert.Error(t, err)
}
