/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vci

import (
	"net/url"
	"time"

	"github.com/trustbloc/wallet-core/pkg/wellknown"
)

// Grant types understood by the token endpoint.
const (
	authorizationCodeGrantType = "authorization_code"
	preAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// ClientOptions identify the wallet towards the authorization server in the
// authorization-code flow.
type ClientOptions struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
}

// PKCE is a verifier/challenge pair per RFC 7636, challenge method S256.
type PKCE struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
}

// AuthorizationData is the in-flight state of an authorization-code flow,
// persisted between the PAR and the redirect back into the wallet.
type AuthorizationData struct {
	ClientOptions      *ClientOptions                         `json:"client_options"`
	IssuerMetadata     *wellknown.IssuerMetadata              `json:"issuer_metadata"`
	AuthServerMetadata *wellknown.AuthorizationServerMetadata `json:"auth_server_metadata"`
	ConfigurationIDs   []string                               `json:"configuration_ids"`
}

// AuthFlowSession is one durable auth-flow session keyed by session id.
type AuthFlowSession struct {
	SessionID         string            `json:"session_id"`
	AuthorizationData AuthorizationData `json:"authorization_data"`
	PKCE              PKCE              `json:"pkce"`
	CreatedAt         time.Time         `json:"created_at"`
}

// AccessToken is a token endpoint response.
type AccessToken struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       *int64 `json:"expires_in,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn *int64 `json:"c_nonce_expires_in,omitempty"`
}

// TokenRequest is one of the two grant shapes accepted by the token
// endpoint. The grant_type parameter is derived from the variant.
type TokenRequest interface {
	values() url.Values
}

// PreAuthTokenRequest exchanges a pre-authorized code.
type PreAuthTokenRequest struct {
	Code   string
	TxCode string
}

func (r *PreAuthTokenRequest) values() url.Values {
	v := url.Values{}
	v.Set("grant_type", preAuthorizedCodeGrantType)
	v.Set("pre-authorized_code", r.Code)

	if r.TxCode != "" {
		v.Set("tx_code", r.TxCode)
	}

	return v
}

// CodeTokenRequest exchanges an authorization code bound by PKCE.
type CodeTokenRequest struct {
	Code        string
	Verifier    string
	RedirectURI string
	ClientID    string
}

func (r *CodeTokenRequest) values() url.Values {
	v := url.Values{}
	v.Set("grant_type", authorizationCodeGrantType)
	v.Set("code", r.Code)
	v.Set("code_verifier", r.Verifier)
	v.Set("redirect_uri", r.RedirectURI)
	v.Set("client_id", r.ClientID)

	return v
}

// authorizationDetailsEntry is one authorization_details array entry of a
// pushed authorization request. format, vct and doctype serialize as
// explicit nulls when unset.
type authorizationDetailsEntry struct {
	Format                    *string  `json:"format"`
	Vct                       *string  `json:"vct"`
	CredentialConfigurationID string   `json:"credential_configuration_id"`
	AuthorizationServers      []string `json:"authorization_servers,omitempty"`
	DocType                   *string  `json:"doctype"`
}

// parResponse is the pushed authorization request endpoint response.
type parResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int64  `json:"expires_in,omitempty"`
}

// tokenErrorResponse is an RFC 6749 token endpoint error body.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
