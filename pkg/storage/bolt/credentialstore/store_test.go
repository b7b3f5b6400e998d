/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credentialstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/trustbloc/wallet-core/pkg/doc/credential"
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

func testRecord(t *testing.T) *credential.SDJWTRecord {
	t.Helper()

	keyID, err := credential.NewKeyID("key-1")
	require.NoError(t, err)

	vct, err := credential.NewVct("EU.PID")
	require.NoError(t, err)

	record, err := credential.NewSDJWTRecord(
		keyID, credential.NewSetID(), vct, "eyJhbGciOiJFUzI1NiJ9.e30.sig", []string{"ZGlzYw"}, nil, nil)
	require.NoError(t, err)

	return record
}

func TestStore_StoreAndGet(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()
	record := testRecord(t)

	require.NoError(t, store.Store(ctx, record))

	loaded, err := store.Get(ctx, record.ID)
	require.NoError(t, err)

	loadedRecord, ok := loaded.(*credential.SDJWTRecord)
	require.True(t, ok)
	assert.Equal(t, record.ID, loadedRecord.ID)
	assert.Equal(t, record.Vct, loadedRecord.Vct)
	assert.Equal(t, credential.StateActive, loadedRecord.State)
}

func TestStore_GetMissing(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), credential.NewID())
	assert.ErrorIs(t, err, ErrDataNotFound)
}

func TestStore_GetAllAndDelete(t *testing.T) {
	store, err := New(openTestDB(t))
	require.NoError(t, err)

	ctx := context.Background()

	first := testRecord(t)
	second := testRecord(t)

	require.NoError(t, store.Store(ctx, first))
	require.NoError(t, store.Store(ctx, second))

	records, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, store.Delete(ctx, first.ID))

	records, err = store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
