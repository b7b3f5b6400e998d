/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package oidc4vci

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/trustbloc/wallet-core/internal/logfields"
	"github.com/trustbloc/wallet-core/pkg/doc/credential"
	"github.com/trustbloc/wallet-core/pkg/doc/mdoc"
	"github.com/trustbloc/wallet-core/pkg/doc/sdjwt"
	"github.com/trustbloc/wallet-core/pkg/kms"
	"github.com/trustbloc/wallet-core/pkg/wellknown"
)

const jwtProofTypeHeader = "openid4vci-proof+jwt"

// credentialRequest is the credential endpoint request body. Exactly one of
// Vct and DocType is set, matching the configuration variant.
type credentialRequest struct {
	Format  string             `json:"format"`
	Vct     string             `json:"vct,omitempty"`
	DocType string             `json:"doctype,omitempty"`
	Proof   *proofOfPossession `json:"proof,omitempty"`
}

type proofOfPossession struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

type credentialResponse struct {
	Credential    string `json:"credential,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	CNonce        string `json:"c_nonce,omitempty"`
}

type proofClaims struct {
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
	Nonce    string `json:"nonce,omitempty"`
}

// dispatchCredentialRequest requests one credential: it mints a fresh holder
// key, builds the proof-of-possession JWT, posts the format-specific request
// and decodes the response into a typed record. The configuration variant
// decides the request shape and the decoder; the format string is carried
// verbatim when the configuration declares one.
func (s *Service) dispatchCredentialRequest(
	ctx context.Context,
	configuration *wellknown.CredentialConfiguration,
	issuerMetadata *wellknown.IssuerMetadata,
	token *AccessToken,
	clientOptions *ClientOptions,
) (credential.Record, error) {
	signer, err := s.keyService.CreateKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("create holder key: %w", err)
	}

	clientID := ""
	if clientOptions != nil {
		clientID = clientOptions.ClientID
	}

	proofJWT, err := buildProofJWT(signer, clientID, issuerMetadata.CredentialIssuer, token.CNonce, s.nowFunc())
	if err != nil {
		return nil, err
	}

	request := credentialRequest{
		Proof: &proofOfPossession{ProofType: "jwt", JWT: proofJWT},
	}

	switch configuration.Variant() {
	case wellknown.VariantSDJWT:
		request.Format = configuration.Format
		if request.Format == "" {
			request.Format = wellknown.FormatSDJWT
		}

		request.Vct = configuration.Vct
	case wellknown.VariantMdoc:
		request.Format = configuration.Format
		if request.Format == "" {
			request.Format = wellknown.FormatMdoc
		}

		request.DocType = configuration.DocType
	default:
		return nil, fmt.Errorf("credential configuration has no recognizable format")
	}

	logger.Debugc(ctx, "requesting credential",
		logfields.WithEndpoint(issuerMetadata.CredentialEndpoint),
		logfields.WithFormat(request.Format),
		logfields.WithKeyID(signer.KeyID()),
	)

	response, err := s.doCredentialRequest(ctx, issuerMetadata.CredentialEndpoint, &request, token)
	if err != nil {
		return nil, err
	}

	if response.TransactionID != "" {
		return nil, fmt.Errorf("issuer returned transaction_id %q: %w",
			response.TransactionID, ErrDeferredIssuanceNotSupported)
	}

	if response.Credential == "" {
		return nil, &CredentialEndpointError{
			StatusCode: http.StatusOK,
			Body:       "response carries neither credential nor transaction_id",
		}
	}

	keyID, err := credential.NewKeyID(signer.KeyID())
	if err != nil {
		return nil, err
	}

	return decodeIssuedCredential(configuration, response.Credential, keyID)
}

func buildProofJWT(signer kms.Signer, clientID, issuer, cNonce string, now time.Time) (string, error) {
	claims := proofClaims{
		Issuer:   clientID,
		Audience: issuer,
		IssuedAt: now.Unix(),
		Nonce:    cNonce,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal proof claims: %w", err)
	}

	headers := jws.NewHeaders()

	if err := headers.Set("typ", jwtProofTypeHeader); err != nil {
		return "", fmt.Errorf("set proof typ header: %w", err)
	}

	if err := headers.Set("jwk", signer.PublicJWK()); err != nil {
		return "", fmt.Errorf("set proof jwk header: %w", err)
	}

	proofJWT, err := signer.SignJWS(payload, headers)
	if err != nil {
		return "", fmt.Errorf("sign proof jwt: %w", err)
	}

	return proofJWT, nil
}

func (s *Service) doCredentialRequest(
	ctx context.Context,
	credentialEndpoint string,
	request *credentialRequest,
	token *AccessToken,
) (*credentialResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal credential request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, credentialEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new credential request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to credential endpoint: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read credential response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &CredentialEndpointError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response credentialResponse

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode credential response: %w", err)
	}

	return &response, nil
}

// decodeIssuedCredential turns the credential endpoint payload into a typed
// record. Batch-issued copies would share the set id; a single issuance gets
// a fresh one.
func decodeIssuedCredential(
	configuration *wellknown.CredentialConfiguration,
	issued string,
	keyID credential.KeyID,
) (credential.Record, error) {
	setID := credential.NewSetID()

	switch configuration.Variant() {
	case wellknown.VariantSDJWT:
		combined, err := sdjwt.Parse(issued)
		if err != nil {
			return nil, fmt.Errorf("decode sd-jwt credential: %w", err)
		}

		vct, err := credential.NewVct(configuration.Vct)
		if err != nil {
			return nil, err
		}

		return credential.NewSDJWTRecord(
			keyID, setID, vct, combined.IssuerSignedJWT, combined.Disclosures, nil, configuration.Display)
	case wellknown.VariantMdoc:
		mdocBytes, err := base64.RawURLEncoding.DecodeString(issued)
		if err != nil {
			return nil, fmt.Errorf("decode mdoc credential: not base64url: %w", err)
		}

		if _, err := mdoc.Parse(mdocBytes); err != nil {
			return nil, fmt.Errorf("decode mdoc credential: %w", err)
		}

		docType, err := mdoc.NewDocType(configuration.DocType)
		if err != nil {
			return nil, err
		}

		return credential.NewMdocRecord(keyID, setID, docType, mdocBytes, nil, configuration.Display)
	default:
		return nil, fmt.Errorf("credential configuration has no recognizable format")
	}
}
