/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authstatestore persists in-flight authorization-code sessions in a
// bbolt bucket. Sessions outlive the browser redirect; entries older than
// the TTL are treated as absent and swept by DeleteExpired.
package authstatestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trustbloc/wallet-core/pkg/service/oidc4vci"
)

const defaultTTL = 10 * time.Minute

var bucketName = []byte("auth_flow_sessions")

// Store implements oidc4vci.SessionStore on bbolt.
type Store struct {
	db      *bolt.DB
	ttl     time.Duration
	nowFunc func() time.Time
}

// Opt configures the store.
type Opt func(*Store)

// WithTTL overrides the session time-to-live.
func WithTTL(ttl time.Duration) Opt {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithNowFunc overrides the clock.
func WithNowFunc(nowFunc func() time.Time) Opt {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// New creates the session bucket and returns the store.
func New(db *bolt.DB, opts ...Opt) (*Store, error) {
	s := &Store{
		db:      db,
		ttl:     defaultTTL,
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session bucket: %w", err)
	}

	return s, nil
}

// Store persists a session under its session id. Last writer wins.
func (s *Store) Store(ctx context.Context, session *oidc4vci.AuthFlowSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(session.SessionID), data)
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

// Get loads a session. Missing and TTL-expired sessions both fail with
// oidc4vci.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*oidc4vci.AuthFlowSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(sessionID)); v != nil {
			data = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if data == nil {
		return nil, oidc4vci.ErrSessionNotFound
	}

	var session oidc4vci.AuthFlowSession

	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	if s.expired(session.CreatedAt) {
		return nil, oidc4vci.ErrSessionNotFound
	}

	return &session, nil
}

// Delete removes a session. Deleting a missing session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// DeleteExpired sweeps sessions past their TTL, including entries abandoned
// by cancelled flows.
func (s *Store) DeleteExpired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)

		var expiredKeys [][]byte

		cursor := bucket.Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var session oidc4vci.AuthFlowSession

			if err := json.Unmarshal(v, &session); err != nil || s.expired(session.CreatedAt) {
				expiredKeys = append(expiredKeys, append([]byte(nil), k...))
			}
		}

		for _, key := range expiredKeys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	return nil
}

func (s *Store) expired(createdAt time.Time) bool {
	return s.nowFunc().Sub(createdAt) > s.ttl
}
