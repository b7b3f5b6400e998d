/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms defines the holder key service consumed by the credential
// request dispatcher. Key generation policy is the provider's concern; the
// wallet core only ever asks for a fresh proof-of-possession key and signs
// through it.
package kms

import (
	"context"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Signer is a handle to a single holder key. Private key material never
// leaves the implementation.
type Signer interface {
	// KeyID returns the stable identifier of the key.
	KeyID() string
	// Algorithm returns the JWS algorithm the key signs with.
	Algorithm() jwa.SignatureAlgorithm
	// PublicJWK returns the public key in JWK form for proof headers.
	PublicJWK() jwk.Key
	// SignJWS signs payload into a compact JWS using the given protected
	// headers.
	SignJWS(payload []byte, headers jws.Headers) (string, error)
}

// KeyService mints holder keys.
type KeyService interface {
	// CreateKey generates a fresh holder key.
	CreateKey(ctx context.Context) (Signer, error)
}
