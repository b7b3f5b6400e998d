/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localkms

import (
	"context"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateKey(t *testing.T) {
	svc := New()

	signer, err := svc.CreateKey(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, signer.KeyID())
	assert.Equal(t, jwa.ES256, signer.Algorithm())
	require.NotNil(t, signer.PublicJWK())

	second, err := svc.CreateKey(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, signer.KeyID(), second.KeyID())
}

func TestSignJWS(t *testing.T) {
	svc := New()

	signer, err := svc.CreateKey(context.Background())
	require.NoError(t, err)

	headers := jws.NewHeaders()
	require.NoError(t, headers.Set("typ", "openid4vci-proof+jwt"))

	signed, err := signer.SignJWS([]byte(`{"nonce":"n"}`), headers)
	require.NoError(t, err)

	payload, err := jws.Verify([]byte(signed), jws.WithKey(jwa.ES256, signer.PublicJWK()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nonce":"n"}`, string(payload))

	message, err := jws.Parse([]byte(signed))
	require.NoError(t, err)
	assert.Equal(t, "openid4vci-proof+jwt", message.Signatures()[0].ProtectedHeaders().Type())
}
