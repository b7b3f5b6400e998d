/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vp

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/trustbloc/wallet-core/pkg/crypto"
)

var logger = log.New("oidc4vp-service")

var (
	// ErrInvalidSignature is returned when the request object signature does
	// not verify under the x5c leaf key.
	ErrInvalidSignature = errors.New("invalid request object signature")
	// ErrClientIDBindingMismatch is returned when no SAN entry of the leaf
	// certificate matches the client_id.
	ErrClientIDBindingMismatch = errors.New("client_id is not bound to the certificate SAN")
)

// TrustChainError reports an x5c chain that is not internally consistent.
type TrustChainError struct {
	Reason string
}

func (e *TrustChainError) Error() string {
	return "trust chain invalid: " + e.Reason
}

var defaultAllowedAlgs = []string{"RS256", "ES256", "PS256", "EdDSA"}

// Authenticator validates request objects. The three checks are independent
// and replayable; accepting a request requires all of them.
type Authenticator struct {
	cryptoSuite crypto.Suite
	allowedAlgs []string
	nowFunc     func() time.Time
}

// Opt configures the authenticator.
type Opt func(*Authenticator)

// WithAllowedAlgs overrides the JWS algorithm whitelist.
func WithAllowedAlgs(algs []string) Opt {
	return func(a *Authenticator) {
		a.allowedAlgs = algs
	}
}

// WithNowFunc overrides the clock used for certificate validity windows.
func WithNowFunc(nowFunc func() time.Time) Opt {
	return func(a *Authenticator) {
		a.nowFunc = nowFunc
	}
}

// NewAuthenticator returns a request-object authenticator.
func NewAuthenticator(cryptoSuite crypto.Suite, opts ...Opt) *Authenticator {
	a := &Authenticator{
		cryptoSuite: cryptoSuite,
		allowedAlgs: defaultAllowedAlgs,
		nowFunc:     time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Authenticate parses a compact JWS request object and runs every check.
func (a *Authenticator) Authenticate(compact string) (*RequestObject, error) {
	requestObject, err := ParseRequestObject(compact)
	if err != nil {
		return nil, err
	}

	if err := a.ValidateJWT(requestObject); err != nil {
		return nil, err
	}

	if err := a.ValidateTrustChain(requestObject); err != nil {
		return nil, err
	}

	if err := a.ValidateSANName(requestObject); err != nil {
		return nil, err
	}

	logger.Debug("request object authenticated")

	return requestObject, nil
}

// ValidateJWT verifies the JWS signature over header.payload using the x5c
// leaf certificate's public key and the header alg.
func (a *Authenticator) ValidateJWT(requestObject *RequestObject) error {
	if !lo.Contains(a.allowedAlgs, requestObject.Alg) {
		return fmt.Errorf("%w: alg %q not allowed", ErrInvalidSignature, requestObject.Alg)
	}

	leaf := requestObject.Chain[0]

	if err := a.cryptoSuite.VerifyJWS(requestObject.Raw, requestObject.Alg, leaf.PublicKey); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return nil
}

// ValidateTrustChain checks that the x5c chain is internally consistent:
// each certificate is signed by its successor, every validity window covers
// now, and a single-certificate chain is self-signed. Anchoring the root in
// a trust store is the caller's policy.
func (a *Authenticator) ValidateTrustChain(requestObject *RequestObject) error {
	chain := requestObject.Chain
	now := a.nowFunc()

	for i, cert := range chain {
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return &TrustChainError{Reason: fmt.Sprintf("certificate %d is outside its validity window", i)}
		}
	}

	if len(chain) == 1 {
		cert := chain[0]

		if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			return &TrustChainError{Reason: "single non-self-signed"}
		}

		if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
			return &TrustChainError{Reason: "single non-self-signed"}
		}

		return nil
	}

	for i := 0; i < len(chain)-1; i++ {
		if err := a.cryptoSuite.VerifyCertificatePair(chain[i], chain[i+1]); err != nil {
			return &TrustChainError{
				Reason: fmt.Sprintf("certificate %d is not signed by certificate %d: %s", i, i+1, err),
			}
		}
	}

	return nil
}

// ValidateSANName checks that the client_id matches a SAN entry of the leaf
// certificate under the client_id_scheme. dNSName entries match exactly;
// wildcards are not honored. URI entries match after normalization.
func (a *Authenticator) ValidateSANName(requestObject *RequestObject) error {
	leaf := requestObject.Chain[0]

	switch requestObject.ClientIDScheme {
	case ClientIDSchemeX509SanDNS:
		if lo.Contains(leaf.DNSNames, requestObject.ClientID) {
			return nil
		}

		return fmt.Errorf("%w: no dNSName SAN equals %q", ErrClientIDBindingMismatch, requestObject.ClientID)
	case ClientIDSchemeX509SanURI:
		normalizedClientID, err := normalizeURI(requestObject.ClientID)
		if err != nil {
			return fmt.Errorf("%w: client_id is not a valid uri", ErrClientIDBindingMismatch)
		}

		for _, sanURI := range leaf.URIs {
			if normalized, err := normalizeURI(sanURI.String()); err == nil && normalized == normalizedClientID {
				return nil
			}
		}

		return fmt.Errorf("%w: no URI SAN equals %q", ErrClientIDBindingMismatch, requestObject.ClientID)
	default:
		return fmt.Errorf("unsupported client_id_scheme %q", requestObject.ClientIDScheme)
	}
}

// normalizeURI lowercases scheme and host and strips default ports.
func normalizeURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if port := u.Port(); port != "" {
		if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
			u.Host = u.Hostname()
		}
	}

	return u.String(), nil
}
