/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vci

import (
	"context"

	"github.com/trustbloc/wallet-core/pkg/doc/credential"
)

// SessionStore persists in-flight auth-flow sessions. The store is the only
// shared-mutable surface of the wallet core; implementations serialize
// per key and apply last-writer-wins for the same session id.
type SessionStore interface {
	// Store persists a session under its session id.
	Store(ctx context.Context, session *AuthFlowSession) error
	// Get loads a session. Missing or expired sessions fail with
	// ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*AuthFlowSession, error)
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// CredentialStore persists issued credential records. A successful Store is
// the commit point of an issuance flow.
type CredentialStore interface {
	Store(ctx context.Context, record credential.Record) error
}
