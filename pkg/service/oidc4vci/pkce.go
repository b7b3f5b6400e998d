/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vci

import (
	"fmt"

	"github.com/trustbloc/wallet-core/pkg/crypto"
)

const (
	codeChallengeMethodS256 = "S256"

	pkceVerifierBytes = 32
	sessionIDBytes    = 16
)

// generatePKCE mints an RFC 7636 verifier/challenge pair. The verifier is 32
// CSPRNG bytes base64url-encoded (43 chars); the challenge is the base64url
// SHA-256 of the verifier string.
func generatePKCE(suite crypto.Suite) (PKCE, error) {
	raw, err := suite.RandomBytes(pkceVerifierBytes)
	if err != nil {
		return PKCE{}, fmt.Errorf("generate pkce verifier: %w", err)
	}

	verifier := suite.EncodeBase64URL(raw)

	return PKCE{Verifier: verifier, Challenge: challengeFromVerifier(suite, verifier)}, nil
}

// challengeFromVerifier derives the S256 code challenge of a verifier.
func challengeFromVerifier(suite crypto.Suite, verifier string) string {
	return suite.EncodeBase64URL(suite.SHA256([]byte(verifier)))
}

// generateSessionID mints a 128-bit base64url session id.
func generateSessionID(suite crypto.Suite) (string, error) {
	raw, err := suite.RandomBytes(sessionIDBytes)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	return suite.EncodeBase64URL(raw), nil
}
