/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credentialstore persists issued credential records in a bbolt
// bucket, in their canonical JSON form. A successful Store is the commit
// point of an issuance flow; no partial credential is ever written.
package credentialstore

import (
	"context"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/trustbloc/wallet-core/pkg/doc/credential"
)

// ErrDataNotFound is returned when no record exists for the given id.
var ErrDataNotFound = errors.New("data not found")

var bucketName = []byte("credentials")

// Store implements oidc4vci.CredentialStore on bbolt.
type Store struct {
	db *bolt.DB
}

// New creates the credential bucket and returns the store.
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create credential bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Store persists a record keyed by its credential id.
func (s *Store) Store(ctx context.Context, record credential.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := credential.Encode(record)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(record.RecordID().String()), data)
	})
	if err != nil {
		return fmt.Errorf("put credential record: %w", err)
	}

	return nil
}

// Get loads and decodes one record.
func (s *Store) Get(ctx context.Context, id credential.ID) (credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(id.String())); v != nil {
			data = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get credential record: %w", err)
	}

	if data == nil {
		return nil, ErrDataNotFound
	}

	return credential.Decode(data)
}

// GetAll loads every stored record. Decode failures abort with an error
// naming the offending credential.
func (s *Store) GetAll(ctx context.Context) ([]credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []credential.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(_, v []byte) error {
			record, err := credential.Decode(v)
			if err != nil {
				return err
			}

			records = append(records, record)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, id credential.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id.String()))
	})
	if err != nil {
		return fmt.Errorf("delete credential record: %w", err)
	}

	return nil
}
