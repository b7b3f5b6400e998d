/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vp_test

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/wallet-core/pkg/crypto"
	"github.com/trustbloc/wallet-core/pkg/service/oidc4vp"
)

type certAuthority struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func newCA(t *testing.T, commonName string, parent *certAuthority) *certAuthority {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}

	signerCert, signerKey := template, key
	if parent != nil {
		signerCert, signerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &certAuthority{cert: cert, key: key}
}

type leafOpts struct {
	dnsNames   []string
	uris       []*url.URL
	selfSigned bool
	notBefore  time.Time
	notAfter   time.Time
}

func newLeaf(t *testing.T, parent *certAuthority, opts leafOpts) *certAuthority {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	notBefore := opts.notBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Hour)
	}

	notAfter := opts.notAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(24 * time.Hour)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "verifier"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		DNSNames:     opts.dnsNames,
		URIs:         opts.uris,
	}

	signerCert, signerKey := template, key
	if !opts.selfSigned {
		require.NotNil(t, parent)
		signerCert, signerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &certAuthority{cert: cert, key: key}
}

// signRequestObject builds an RS256 compact JWS with the chain in x5c.
func signRequestObject(t *testing.T, claims map[string]interface{}, key *rsa.PrivateKey, chain ...*x509.Certificate) string {
	t.Helper()

	x5c := make([]string, 0, len(chain))
	for _, cert := range chain {
		x5c = append(x5c, base64.StdEncoding.EncodeToString(cert.Raw))
	}

	header := map[string]interface{}{
		"alg": "RS256",
		"typ": "oauth-authz-req+jwt",
		"x5c": x5c,
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	payloadJSON, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON)

	digest := sha256.Sum256([]byte(signingInput))

	signature, err := rsa.SignPKCS1v15(rand.Reader, key, stdcrypto.SHA256, digest[:])
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature)
}

func defaultClaims() map[string]interface{} {
	return map[string]interface{}{
		"client_id":        "verifier.example.com",
		"client_id_scheme": "x509_san_dns",
		"response_mode":    "direct_post",
		"nonce":            "nonce-1",
		"presentation_definition": map[string]interface{}{
			"id": "pd-1",
		},
	}
}

func TestAuthenticate_ThreeCertChain(t *testing.T) {
	root := newCA(t, "root", nil)
	intermediate := newCA(t, "intermediate", root)
	leaf := newLeaf(t, intermediate, leafOpts{dnsNames: []string{"verifier.example.com"}})

	compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert, intermediate.cert, root.cert)

	authenticator := oidc4vp.NewAuthenticator(crypto.Default())

	requestObject, err := authenticator.Authenticate(compact)
	require.NoError(t, err)

	assert.Equal(t, "verifier.example.com", requestObject.ClientID)
	assert.Equal(t, "x509_san_dns", requestObject.ClientIDScheme)
	assert.Equal(t, "direct_post", requestObject.ResponseMode)
	assert.Equal(t, "nonce-1", requestObject.Nonce)
	assert.Len(t, requestObject.Chain, 3)

	// each check is independently replayable
	require.NoError(t, authenticator.ValidateJWT(requestObject))
	require.NoError(t, authenticator.ValidateJWT(requestObject))
	require.NoError(t, authenticator.ValidateTrustChain(requestObject))
	require.NoError(t, authenticator.ValidateSANName(requestObject))
}

func TestValidateJWT(t *testing.T) {
	leaf := newLeaf(t, nil, leafOpts{dnsNames: []string{"verifier.example.com"}, selfSigned: true})

	t.Run("tampered payload", func(t *testing.T) {
		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert)

		tamperedClaims := defaultClaims()
		tamperedClaims["nonce"] = "other"
		tampered := signRequestObject(t, tamperedClaims, leaf.key, leaf.cert)

		// graft the original signature onto the tampered body
		parts1 := splitJWS(t, compact)
		parts2 := splitJWS(t, tampered)
		forged := parts2[0] + "." + parts2[1] + "." + parts1[2]

		requestObject, err := oidc4vp.ParseRequestObject(forged)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateJWT(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrInvalidSignature)
	})

	t.Run("signed with a different key", func(t *testing.T) {
		other := newLeaf(t, nil, leafOpts{dnsNames: []string{"verifier.example.com"}, selfSigned: true})

		compact := signRequestObject(t, defaultClaims(), other.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateJWT(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrInvalidSignature)
	})

	t.Run("alg not in whitelist", func(t *testing.T) {
		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		authenticator := oidc4vp.NewAuthenticator(crypto.Default(),
			oidc4vp.WithAllowedAlgs([]string{"ES256"}))

		err = authenticator.ValidateJWT(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrInvalidSignature)
	})
}

func TestValidateTrustChain(t *testing.T) {
	root := newCA(t, "root", nil)
	intermediate := newCA(t, "intermediate", root)

	t.Run("single self-signed accepted", func(t *testing.T) {
		leaf := newLeaf(t, nil, leafOpts{dnsNames: []string{"verifier.example.com"}, selfSigned: true})

		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		require.NoError(t, oidc4vp.NewAuthenticator(crypto.Default()).ValidateTrustChain(requestObject))
	})

	t.Run("single non-self-signed rejected", func(t *testing.T) {
		leaf := newLeaf(t, intermediate, leafOpts{dnsNames: []string{"verifier.example.com"}})

		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateTrustChain(requestObject)

		var chainErr *oidc4vp.TrustChainError
		require.ErrorAs(t, err, &chainErr)
		assert.Equal(t, "single non-self-signed", chainErr.Reason)
	})

	t.Run("broken chain order rejected", func(t *testing.T) {
		leaf := newLeaf(t, intermediate, leafOpts{dnsNames: []string{"verifier.example.com"}})

		// root placed where the leaf's issuer should be
		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert, root.cert, intermediate.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		var chainErr *oidc4vp.TrustChainError
		require.ErrorAs(t,
			oidc4vp.NewAuthenticator(crypto.Default()).ValidateTrustChain(requestObject), &chainErr)
	})

	t.Run("expired certificate rejected", func(t *testing.T) {
		leaf := newLeaf(t, intermediate, leafOpts{
			dnsNames:  []string{"verifier.example.com"},
			notBefore: time.Now().Add(-48 * time.Hour),
			notAfter:  time.Now().Add(-24 * time.Hour),
		})

		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert, intermediate.cert, root.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		var chainErr *oidc4vp.TrustChainError
		require.ErrorAs(t,
			oidc4vp.NewAuthenticator(crypto.Default()).ValidateTrustChain(requestObject), &chainErr)
		assert.Contains(t, chainErr.Reason, "validity window")
	})

	t.Run("clock injection makes the check replayable", func(t *testing.T) {
		leaf := newLeaf(t, intermediate, leafOpts{dnsNames: []string{"verifier.example.com"}})

		compact := signRequestObject(t, defaultClaims(), leaf.key, leaf.cert, intermediate.cert, root.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		future := oidc4vp.NewAuthenticator(crypto.Default(),
			oidc4vp.WithNowFunc(func() time.Time { return time.Now().Add(72 * time.Hour) }))

		var chainErr *oidc4vp.TrustChainError
		require.ErrorAs(t, future.ValidateTrustChain(requestObject), &chainErr)
	})
}

func TestValidateSANName(t *testing.T) {
	t.Run("dns mismatch", func(t *testing.T) {
		leaf := newLeaf(t, nil, leafOpts{dnsNames: []string{"evil.com"}, selfSigned: true})

		claims := defaultClaims()
		claims["client_id"] = "example.com"

		compact := signRequestObject(t, claims, leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateSANName(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrClientIDBindingMismatch)
	})

	t.Run("wildcard not honored", func(t *testing.T) {
		leaf := newLeaf(t, nil, leafOpts{dnsNames: []string{"*.example.com"}, selfSigned: true})

		claims := defaultClaims()
		claims["client_id"] = "verifier.example.com"

		compact := signRequestObject(t, claims, leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateSANName(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrClientIDBindingMismatch)
	})

	t.Run("uri scheme matches after normalization", func(t *testing.T) {
		sanURI, err := url.Parse("https://verifier.example.com:443/cb")
		require.NoError(t, err)

		leaf := newLeaf(t, nil, leafOpts{uris: []*url.URL{sanURI}, selfSigned: true})

		claims := defaultClaims()
		claims["client_id"] = "HTTPS://VERIFIER.example.com/cb"
		claims["client_id_scheme"] = "x509_san_uri"

		compact := signRequestObject(t, claims, leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		require.NoError(t, oidc4vp.NewAuthenticator(crypto.Default()).ValidateSANName(requestObject))
	})

	t.Run("uri mismatch", func(t *testing.T) {
		sanURI, err := url.Parse("https://other.example.com/cb")
		require.NoError(t, err)

		leaf := newLeaf(t, nil, leafOpts{uris: []*url.URL{sanURI}, selfSigned: true})

		claims := defaultClaims()
		claims["client_id"] = "https://verifier.example.com/cb"
		claims["client_id_scheme"] = "x509_san_uri"

		compact := signRequestObject(t, claims, leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateSANName(requestObject)
		assert.ErrorIs(t, err, oidc4vp.ErrClientIDBindingMismatch)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		leaf := newLeaf(t, nil, leafOpts{dnsNames: []string{"verifier.example.com"}, selfSigned: true})

		claims := defaultClaims()
		claims["client_id_scheme"] = "redirect_uri"

		compact := signRequestObject(t, claims, leaf.key, leaf.cert)

		requestObject, err := oidc4vp.ParseRequestObject(compact)
		require.NoError(t, err)

		err = oidc4vp.NewAuthenticator(crypto.Default()).ValidateSANName(requestObject)
		require.Error(t, err)
	})
}

func TestParseRequestObject_Failures(t *testing.T) {
	t.Run("not a compact jws", func(t *testing.T) {
		_, err := oidc4vp.ParseRequestObject("a.b")
		require.Error(t, err)
	})

	t.Run("no x5c", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))

		_, err := oidc4vp.ParseRequestObject(header + "." + payload + ".c2ln")
		require.Error(t, err)
	})

	t.Run("payload not json", func(t *testing.T) {
		leaf := newLeaf(t, nil, leafOpts{selfSigned: true})

		header, err := json.Marshal(map[string]interface{}{
			"alg": "RS256",
			"x5c": []string{base64.StdEncoding.EncodeToString(leaf.cert.Raw)},
		})
		require.NoError(t, err)

		compact := base64.RawURLEncoding.EncodeToString(header) +
			"." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c2ln"

		_, err = oidc4vp.ParseRequestObject(compact)
		require.Error(t, err)
	})
}

func splitJWS(t *testing.T, compact string) []string {
	t.Helper()

	parts := strings.Split(compact, ".")
	require.Len(t, parts, 3)

	return parts
}
