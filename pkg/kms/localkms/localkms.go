/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package localkms is a software key service backed by in-memory ECDSA P-256
// keys. It is suitable for tests and single-process wallets; platform
// keystores implement kms.KeyService the same way.
package localkms

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/trustbloc/wallet-core/pkg/kms"
)

// LocalKMS implements kms.KeyService.
type LocalKMS struct{}

// New returns a software key service.
func New() *LocalKMS {
	return &LocalKMS{}
}

// CreateKey generates a fresh P-256 key with a uuid key id.
func (l *LocalKMS) CreateKey(_ context.Context) (kms.Signer, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate p-256 key: %w", err)
	}

	privateJWK, err := jwk.FromRaw(private)
	if err != nil {
		return nil, fmt.Errorf("convert private key to jwk: %w", err)
	}

	publicJWK, err := privateJWK.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public jwk: %w", err)
	}

	keyID := uuid.NewString()

	if err := publicJWK.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("set key id: %w", err)
	}

	return &signer{
		keyID:      keyID,
		privateJWK: privateJWK,
		publicJWK:  publicJWK,
	}, nil
}

type signer struct {
	keyID      string
	privateJWK jwk.Key
	publicJWK  jwk.Key
}

func (s *signer) KeyID() string {
	return s.keyID
}

func (s *signer) Algorithm() jwa.SignatureAlgorithm {
	return jwa.ES256
}

func (s *signer) PublicJWK() jwk.Key {
	return s.publicJWK
}

func (s *signer) SignJWS(payload []byte, headers jws.Headers) (string, error) {
	signed, err := jws.Sign(payload, jws.WithKey(jwa.ES256, s.privateJWK, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("sign jws: %w", err)
	}

	return string(signed), nil
}
