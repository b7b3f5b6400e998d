/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credentialoffer parses OpenID4VCI credential offers, either passed
// by value in the credential_offer query parameter or fetched from
// credential_offer_uri.
package credentialoffer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/valyala/fastjson"
)

// Offer is a credential offer per OID4VCI draft 13.
type Offer struct {
	CredentialIssuer           string   `json:"credential_issuer"`
	CredentialConfigurationIDs []string `json:"credential_configuration_ids"`
	Grants                     *Grants  `json:"grants,omitempty"`
}

// Grants carries the offered grant types.
type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

// AuthorizationCodeGrant is the authorization_code grant of an offer.
type AuthorizationCodeGrant struct {
	IssuerState string `json:"issuer_state,omitempty"`
}

// PreAuthorizedCodeGrant is the pre-authorized_code grant of an offer.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// TxCode describes the transaction code the user must supply alongside a
// pre-authorized code.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// FieldError names a single malformed offer field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError lists every malformed field of an offer.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Fields))

	for _, f := range e.Fields {
		reasons = append(reasons, f.Field+": "+f.Reason)
	}

	return "malformed credential offer: " + strings.Join(reasons, "; ")
}

// Parser resolves credential offer URIs.
type Parser struct {
	HTTPClient *http.Client
}

// Parse extracts the offer from a credential-offer URI. The query must carry
// either credential_offer (inline JSON) or credential_offer_uri (fetched over
// HTTPS).
func (p *Parser) Parse(ctx context.Context, offerURI string) (*Offer, error) {
	u, err := url.Parse(offerURI)
	if err != nil {
		return nil, fmt.Errorf("invalid credential offer uri: %w", err)
	}

	var payload []byte

	if inline := u.Query().Get("credential_offer"); inline != "" {
		payload = []byte(inline)
	} else {
		remoteURI := u.Query().Get("credential_offer_uri")
		if remoteURI == "" {
			return nil, &ValidationError{Fields: []FieldError{
				{Field: "credential_offer", Reason: "both credential_offer and credential_offer_uri are empty"},
			}}
		}

		payload, err = p.fetch(ctx, remoteURI)
		if err != nil {
			return nil, err
		}
	}

	return decodeOffer(payload)
}

func (p *Parser) fetch(ctx context.Context, remoteURI string) ([]byte, error) {
	remote, err := url.Parse(remoteURI)
	if err != nil {
		return nil, fmt.Errorf("invalid credential_offer_uri: %w", err)
	}

	if remote.Scheme != "https" {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "credential_offer_uri", Reason: "must use https"},
		}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURI, nil)
	if err != nil {
		return nil, fmt.Errorf("new credential offer request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch credential offer: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch credential offer: status code %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read credential offer body: %w", err)
	}

	return payload, nil
}

// decodeOffer validates the raw offer payload field by field, collecting
// every failure, then binds it onto the model.
func decodeOffer(payload []byte) (*Offer, error) {
	v, err := fastjson.ParseBytes(payload)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "credential_offer", Reason: "not valid json"},
		}}
	}

	var fields []FieldError

	if issuer := string(v.GetStringBytes("credential_issuer")); issuer == "" {
		fields = append(fields, FieldError{Field: "credential_issuer", Reason: "missing or empty"})
	}

	ids := v.GetArray("credential_configuration_ids")
	if len(ids) == 0 {
		fields = append(fields, FieldError{Field: "credential_configuration_ids", Reason: "missing or empty"})
	}

	for i, id := range ids {
		if len(id.GetStringBytes()) == 0 {
			fields = append(fields, FieldError{
				Field:  fmt.Sprintf("credential_configuration_ids[%d]", i),
				Reason: "not a non-empty string",
			})
		}
	}

	grants := v.Get("grants")

	switch {
	case grants == nil:
		fields = append(fields, FieldError{Field: "grants", Reason: "missing"})
	case !decodableGrantPresent(grants):
		fields = append(fields, FieldError{Field: "grants", Reason: "no decodable grant"})
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var offer Offer

	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "credential_offer", Reason: err.Error()},
		}}
	}

	return &offer, nil
}

func decodableGrantPresent(grants *fastjson.Value) bool {
	if grants.Exists("authorization_code") {
		return true
	}

	preAuth := grants.Get("urn:ietf:params:oauth:grant-type:pre-authorized_code")

	return preAuth != nil && len(preAuth.GetStringBytes("pre-authorized_code")) > 0
}
