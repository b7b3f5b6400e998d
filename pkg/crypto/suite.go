/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package crypto defines the small capability surface the wallet core needs
// from a platform crypto provider, so implementations can swap providers
// without touching protocol code.
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Suite is the crypto capability set used across the wallet core. Signing is
// intentionally absent: private-key operations go through the key service,
// which never exposes key material to callers.
type Suite interface {
	// SHA256 returns the SHA-256 digest of data.
	SHA256(data []byte) []byte
	// RandomBytes returns n bytes from a CSPRNG.
	RandomBytes(n int) ([]byte, error)
	// EncodeBase64URL encodes data as unpadded base64url.
	EncodeBase64URL(data []byte) string
	// DecodeBase64URL decodes unpadded base64url data.
	DecodeBase64URL(s string) ([]byte, error)
	// VerifyJWS verifies the signature of a compact JWS with the given public
	// key and algorithm.
	VerifyJWS(compact string, alg string, pub stdcrypto.PublicKey) error
	// ParseCertificate parses a single DER-encoded X.509 certificate.
	ParseCertificate(der []byte) (*x509.Certificate, error)
	// VerifyCertificatePair verifies that parent signed child.
	VerifyCertificatePair(child, parent *x509.Certificate) error
}

// Default returns the suite backed by the Go standard library and jwx.
func Default() Suite {
	return &defaultSuite{}
}

type defaultSuite struct{}

func (s *defaultSuite) SHA256(data []byte) []byte {
	digest := sha256.Sum256(data)

	return digest[:]
}

func (s *defaultSuite) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)

	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}

	return b, nil
}

func (s *defaultSuite) EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func (s *defaultSuite) DecodeBase64URL(v string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(v)
}

func (s *defaultSuite) VerifyJWS(compact string, alg string, pub stdcrypto.PublicKey) error {
	_, err := jws.Verify([]byte(compact), jws.WithKey(jwa.SignatureAlgorithm(alg), pub))
	if err != nil {
		return fmt.Errorf("verify jws: %w", err)
	}

	return nil
}

func (s *defaultSuite) ParseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return cert, nil
}

func (s *defaultSuite) VerifyCertificatePair(child, parent *x509.Certificate) error {
	return child.CheckSignatureFrom(parent)
}
