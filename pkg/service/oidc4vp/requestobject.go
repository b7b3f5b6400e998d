/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package oidc4vp authenticates OpenID4VP authorization request objects:
// compact JWS signed by the verifier, carrying its certificate chain in the
// x5c header and bound to the client_id through an X.509 SAN entry.
package oidc4vp

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Client id schemes with an X.509 SAN binding.
const (
	ClientIDSchemeX509SanDNS = "x509_san_dns"
	ClientIDSchemeX509SanURI = "x509_san_uri"
)

// RequestObject is a parsed, not yet authenticated authorization request
// object. All checks are pure over Raw and the clock.
type RequestObject struct {
	// Raw is the compact JWS as received.
	Raw string

	// Alg is the JWS algorithm from the protected header.
	Alg string
	// Chain is the x5c certificate chain, leaf first.
	Chain []*x509.Certificate

	// ClientID and ClientIDScheme are lifted from the payload.
	ClientID       string
	ClientIDScheme string
	// ResponseMode and Nonce are lifted from the payload.
	ResponseMode string
	Nonce        string

	// Payload is the decoded claims JSON for callers that need the
	// presentation_definition or dcql_query.
	Payload []byte
}

type requestObjectHeader struct {
	Alg string   `json:"alg"`
	Typ string   `json:"typ,omitempty"`
	X5C []string `json:"x5c"`
}

// ParseRequestObject splits and decodes a compact JWS request object without
// verifying anything.
func ParseRequestObject(compact string) (*RequestObject, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("request object is not a compact jws")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode jws header: %w", err)
	}

	var header requestObjectHeader

	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("unmarshal jws header: %w", err)
	}

	if header.Alg == "" {
		return nil, fmt.Errorf("jws header has no alg")
	}

	if len(header.X5C) == 0 {
		return nil, fmt.Errorf("jws header has no x5c chain")
	}

	chain := make([]*x509.Certificate, 0, len(header.X5C))

	for i, encoded := range header.X5C {
		// x5c entries are standard base64 DER per RFC 7515.
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode x5c[%d]: %w", i, err)
		}

		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse x5c[%d]: %w", i, err)
		}

		chain = append(chain, cert)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode jws payload: %w", err)
	}

	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("jws payload is not valid json")
	}

	claims := gjson.ParseBytes(payload)

	return &RequestObject{
		Raw:            compact,
		Alg:            header.Alg,
		Chain:          chain,
		ClientID:       claims.Get("client_id").String(),
		ClientIDScheme: claims.Get("client_id_scheme").String(),
		ResponseMode:   claims.Get("response_mode").String(),
		Nonce:          claims.Get("nonce").String(),
		Payload:        payload,
	}, nil
}
