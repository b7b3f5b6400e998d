/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package oidc4vci drives the holder side of OpenID4VCI issuance: it turns a
// resolved credential offer into a persisted credential record, either
// through the pre-authorized-code grant or through the authorization-code
// grant with PKCE and pushed authorization requests.
package oidc4vci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/trustbloc/logutil-go/pkg/log"
	"golang.org/x/oauth2"

	"github.com/trustbloc/wallet-core/internal/logfields"
	"github.com/trustbloc/wallet-core/pkg/crypto"
	"github.com/trustbloc/wallet-core/pkg/doc/credential"
	"github.com/trustbloc/wallet-core/pkg/kms"
	"github.com/trustbloc/wallet-core/pkg/wellknown"
)

var logger = log.New("oidc4vci-service")

const defaultHTTPTimeout = 30 * time.Second

// Config holds the service dependencies.
type Config struct {
	HTTPClient      *http.Client
	WellKnown       *wellknown.Service
	SessionStore    SessionStore
	CredentialStore CredentialStore
	KeyService      kms.KeyService
	CryptoSuite     crypto.Suite
}

// Service implements the issuance flows.
type Service struct {
	httpClient      *http.Client
	wellKnown       *wellknown.Service
	sessionStore    SessionStore
	credentialStore CredentialStore
	keyService      kms.KeyService
	cryptoSuite     crypto.Suite
	nowFunc         func() time.Time
}

// Opt configures the service.
type Opt func(*Service)

// WithNowFunc overrides the clock.
func WithNowFunc(nowFunc func() time.Time) Opt {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// NewService returns an issuance service.
func NewService(config *Config, opts ...Opt) *Service {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	s := &Service{
		httpClient:      httpClient,
		wellKnown:       config.WellKnown,
		sessionStore:    config.SessionStore,
		credentialStore: config.CredentialStore,
		keyService:      config.KeyService,
		cryptoSuite:     config.CryptoSuite,
		nowFunc:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InitiateAuthFlow starts an authorization-code flow for the given offer:
// it mints PKCE material, pushes the authorization request, persists the
// session and returns the URL the browser must be sent to. The pushed
// request's state parameter carries the session id, so the redirect back
// into the wallet can resume the flow.
func (s *Service) InitiateAuthFlow(
	ctx context.Context,
	offerMetadata *wellknown.CredentialOfferMetadata,
	clientOptions *ClientOptions,
) (*url.URL, error) {
	if clientOptions == nil || clientOptions.ClientID == "" || clientOptions.RedirectURI == "" {
		return nil, errors.New("client options with client id and redirect uri are required")
	}

	pkce, err := generatePKCE(s.cryptoSuite)
	if err != nil {
		return nil, err
	}

	sessionID, err := generateSessionID(s.cryptoSuite)
	if err != nil {
		return nil, err
	}

	offer := offerMetadata.Offer
	issuerMetadata := offerMetadata.IssuerMetadata

	authServerMetadata, err := s.wellKnown.GetAuthorizationServerMetadata(ctx, issuerMetadata)
	if err != nil {
		return nil, err
	}

	authorizationDetails, err := buildAuthorizationDetails(offer.CredentialConfigurationIDs, issuerMetadata)
	if err != nil {
		return nil, err
	}

	parValues := url.Values{}
	parValues.Set("client_id", clientOptions.ClientID)
	parValues.Set("redirect_uri", clientOptions.RedirectURI)
	parValues.Set("code_challenge", pkce.Challenge)
	parValues.Set("code_challenge_method", codeChallengeMethodS256)
	parValues.Set("authorization_details", string(authorizationDetails))
	parValues.Set("scope", collectScopes(offer.CredentialConfigurationIDs, issuerMetadata))
	parValues.Set("state", sessionID)

	if offer.Grants != nil && offer.Grants.AuthorizationCode != nil &&
		offer.Grants.AuthorizationCode.IssuerState != "" {
		parValues.Set("issuer_state", offer.Grants.AuthorizationCode.IssuerState)
	}

	parResp, err := s.pushAuthorizationRequest(ctx, authServerMetadata.PushedAuthorizationRequestEndpoint, parValues)
	if err != nil {
		return nil, err
	}

	session := &AuthFlowSession{
		SessionID: sessionID,
		AuthorizationData: AuthorizationData{
			ClientOptions:      clientOptions,
			IssuerMetadata:     issuerMetadata,
			AuthServerMetadata: authServerMetadata,
			ConfigurationIDs:   offer.CredentialConfigurationIDs,
		},
		PKCE:      pkce,
		CreatedAt: s.nowFunc(),
	}

	if err := s.sessionStore.Store(ctx, session); err != nil {
		return nil, fmt.Errorf("store auth flow session: %w", err)
	}

	logger.Debugc(ctx, "auth flow initiated",
		logfields.WithSessionID(sessionID),
		logfields.WithIssuer(issuerMetadata.CredentialIssuer),
	)

	authorizeURL, err := url.Parse(authServerMetadata.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse authorization endpoint: %w", err)
	}

	query := url.Values{}
	query.Set("client_id", clientOptions.ClientID)
	query.Set("request_uri", parResp.RequestURI)
	authorizeURL.RawQuery = query.Encode()

	return authorizeURL, nil
}

// RequestCredential completes an authorization-code flow after the redirect:
// it exchanges the code at the token endpoint, requests the credential,
// persists the record and deletes the session. A token endpoint failure
// preserves the session for a retry; a credential endpoint failure is
// terminal.
func (s *Service) RequestCredential(ctx context.Context, sessionID, code string) (credential.Record, error) {
	session, err := s.sessionStore.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := session.AuthorizationData

	token, err := s.exchangeCode(ctx, data.AuthServerMetadata.TokenEndpoint, &CodeTokenRequest{
		Code:        code,
		Verifier:    session.PKCE.Verifier,
		RedirectURI: data.ClientOptions.RedirectURI + "?session=" + sessionID,
		ClientID:    data.ClientOptions.ClientID,
	})
	if err != nil {
		return nil, err
	}

	if len(data.ConfigurationIDs) == 0 {
		return nil, errors.New("session has no configuration ids")
	}

	configuration, err := lookupConfiguration(data.IssuerMetadata, data.ConfigurationIDs[0])
	if err != nil {
		return nil, err
	}

	record, err := s.dispatchCredentialRequest(ctx, configuration, data.IssuerMetadata, token, data.ClientOptions)
	if err != nil {
		var endpointErr *CredentialEndpointError
		if errors.As(err, &endpointErr) {
			_ = s.sessionStore.Delete(ctx, sessionID)
		}

		return nil, err
	}

	if err := s.credentialStore.Store(ctx, record); err != nil {
		return nil, fmt.Errorf("store credential record: %w", err)
	}

	if err := s.sessionStore.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("delete auth flow session: %w", err)
	}

	logger.Infoc(ctx, "credential issued",
		logfields.WithSessionID(sessionID),
		logfields.WithCredentialID(record.RecordID().String()),
	)

	return record, nil
}

// AcceptOffer runs the pre-authorized-code flow end to end. Only the first
// credential configuration of the offer is requested.
func (s *Service) AcceptOffer(
	ctx context.Context,
	offerMetadata *wellknown.CredentialOfferMetadata,
	txCode string,
) (credential.Record, error) {
	offer := offerMetadata.Offer
	issuerMetadata := offerMetadata.IssuerMetadata

	if offer.Grants == nil || offer.Grants.PreAuthorizedCode == nil ||
		offer.Grants.PreAuthorizedCode.PreAuthorizedCode == "" {
		return nil, ErrNoPreAuthorizedCodeGrant
	}

	authServerMetadata, err := s.wellKnown.GetAuthorizationServerMetadata(ctx, issuerMetadata)
	if err != nil {
		return nil, err
	}

	token, err := s.requestTokenForm(ctx, authServerMetadata.TokenEndpoint, &PreAuthTokenRequest{
		Code:   offer.Grants.PreAuthorizedCode.PreAuthorizedCode,
		TxCode: txCode,
	})
	if err != nil {
		return nil, err
	}

	if len(offer.CredentialConfigurationIDs) == 0 {
		return nil, errors.New("offer has no credential configuration ids")
	}

	configuration, err := lookupConfiguration(issuerMetadata, offer.CredentialConfigurationIDs[0])
	if err != nil {
		return nil, err
	}

	record, err := s.dispatchCredentialRequest(ctx, configuration, issuerMetadata, token, nil)
	if err != nil {
		return nil, err
	}

	if err := s.credentialStore.Store(ctx, record); err != nil {
		return nil, fmt.Errorf("store credential record: %w", err)
	}

	logger.Infoc(ctx, "credential issued",
		logfields.WithIssuer(issuerMetadata.CredentialIssuer),
		logfields.WithCredentialID(record.RecordID().String()),
	)

	return record, nil
}

func (s *Service) pushAuthorizationRequest(
	ctx context.Context,
	parEndpoint string,
	values url.Values,
) (*parResponse, error) {
	if parEndpoint == "" {
		return nil, errors.New("authorization server does not advertise a pushed authorization request endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parEndpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new pushed authorization request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post pushed authorization request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pushed authorization response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &PushedAuthorizationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parResp parResponse

	if err := json.Unmarshal(body, &parResp); err != nil {
		return nil, fmt.Errorf("decode pushed authorization response: %w", err)
	}

	if parResp.RequestURI == "" {
		return nil, &PushedAuthorizationError{StatusCode: resp.StatusCode, Body: "response has no request_uri"}
	}

	return &parResp, nil
}

// exchangeCode trades an authorization code for an access token through the
// oauth2 client, surfacing the server's error and error_description verbatim.
func (s *Service) exchangeCode(
	ctx context.Context,
	tokenEndpoint string,
	request *CodeTokenRequest,
) (*AccessToken, error) {
	oauthClient := &oauth2.Config{
		ClientID:    request.ClientID,
		RedirectURL: request.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := oauthClient.Exchange(ctx, request.Code,
		oauth2.SetAuthURLParam("code_verifier", request.Verifier),
	)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, tokenEndpointError(retrieveErr.Response.StatusCode, retrieveErr.Body)
		}

		return nil, fmt.Errorf("exchange code for token: %w", err)
	}

	accessToken := &AccessToken{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	}

	if cNonce, ok := token.Extra("c_nonce").(string); ok {
		accessToken.CNonce = cNonce
	}

	if expiresIn, ok := token.Extra("expires_in").(float64); ok {
		accessToken.ExpiresIn = lo.ToPtr(int64(expiresIn))
	}

	if cNonceExpiresIn, ok := token.Extra("c_nonce_expires_in").(float64); ok {
		accessToken.CNonceExpiresIn = lo.ToPtr(int64(cNonceExpiresIn))
	}

	return accessToken, nil
}

// requestTokenForm posts a form-encoded token request outside the oauth2
// client, used for the pre-authorized-code grant.
func (s *Service) requestTokenForm(
	ctx context.Context,
	tokenEndpoint string,
	request TokenRequest,
) (*AccessToken, error) {
	if tokenEndpoint == "" {
		return nil, errors.New("authorization server does not advertise a token endpoint")
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, tokenEndpoint, strings.NewReader(request.values().Encode()))
	if err != nil {
		return nil, fmt.Errorf("new token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post token request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, tokenEndpointError(resp.StatusCode, body)
	}

	var accessToken AccessToken

	if err := json.Unmarshal(body, &accessToken); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &accessToken, nil
}

func tokenEndpointError(statusCode int, body []byte) *TokenEndpointError {
	var errResp tokenErrorResponse

	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &TokenEndpointError{StatusCode: statusCode, Code: strings.TrimSpace(string(body))}
	}

	return &TokenEndpointError{
		StatusCode:  statusCode,
		Code:        errResp.Error,
		Description: errResp.ErrorDescription,
	}
}

// collectScopes joins the scopes advertised by the referenced configurations,
// deduplicated in offer order. Configurations without a scope contribute
// nothing.
func collectScopes(configurationIDs []string, issuerMetadata *wellknown.IssuerMetadata) string {
	var scopes []string

	for _, id := range configurationIDs {
		configuration, ok := issuerMetadata.CredentialConfigurationsSupported[id]
		if !ok || configuration.Scope == "" {
			continue
		}

		if !lo.Contains(scopes, configuration.Scope) {
			scopes = append(scopes, configuration.Scope)
		}
	}

	return strings.Join(scopes, " ")
}

// buildAuthorizationDetails maps each referenced configuration onto an
// authorization details entry; entries carry no type member. The variant decides whether
// vct or doctype is carried; the other stays null.
func buildAuthorizationDetails(
	configurationIDs []string,
	issuerMetadata *wellknown.IssuerMetadata,
) (json.RawMessage, error) {
	entries := make([]authorizationDetailsEntry, 0, len(configurationIDs))

	for _, id := range configurationIDs {
		configuration, err := lookupConfiguration(issuerMetadata, id)
		if err != nil {
			return nil, err
		}

		entry := authorizationDetailsEntry{
			CredentialConfigurationID: id,
			AuthorizationServers:      issuerMetadata.AuthorizationServers,
		}

		switch configuration.Variant() {
		case wellknown.VariantSDJWT:
			entry.Vct = lo.ToPtr(configuration.Vct)
		case wellknown.VariantMdoc:
			entry.DocType = lo.ToPtr(configuration.DocType)
		default:
			return nil, fmt.Errorf("credential configuration %q has no recognizable format", id)
		}

		entries = append(entries, entry)
	}

	details, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal authorization details: %w", err)
	}

	return details, nil
}

func lookupConfiguration(
	issuerMetadata *wellknown.IssuerMetadata,
	configurationID string,
) (*wellknown.CredentialConfiguration, error) {
	configuration, ok := issuerMetadata.CredentialConfigurationsSupported[configurationID]
	if !ok {
		return nil, fmt.Errorf("credential configuration %q not found in issuer metadata", configurationID)
	}

	return configuration, nil
}
