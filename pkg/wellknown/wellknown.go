/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package wellknown fetches and merges OpenID4VCI issuer and authorization
// server metadata.
package wellknown

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/trustbloc/wallet-core/internal/logfields"
	"github.com/trustbloc/wallet-core/pkg/credentialoffer"
	"github.com/trustbloc/wallet-core/pkg/doc/credential"
)

var logger = log.New("wellknown-service")

const (
	issuerMetadataPath = "/.well-known/openid-credential-issuer"
	authServerPath     = "/.well-known/oauth-authorization-server"

	maxFetchRetries = 3

	defaultHTTPTimeout = 30 * time.Second
)

// Credential configuration formats carried verbatim from issuer metadata.
const (
	FormatSDJWT = "vc+sd-jwt"
	FormatMdoc  = "mso_mdoc"
)

// Variant tags the credential format family of a configuration.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantSDJWT
	VariantMdoc
)

// CredentialConfiguration describes one issuable credential. Exactly one of
// Vct and DocType identifies the variant; it wins over Format, which is
// carried verbatim.
type CredentialConfiguration struct {
	Format  string               `json:"format,omitempty"`
	Scope   string               `json:"scope,omitempty"`
	Vct     string               `json:"vct,omitempty"`
	DocType string               `json:"doctype,omitempty"`
	Display []credential.Display `json:"display,omitempty"`
}

// Variant returns the credential format family of the configuration.
func (c *CredentialConfiguration) Variant() Variant {
	switch {
	case c.Vct != "":
		return VariantSDJWT
	case c.DocType != "":
		return VariantMdoc
	case c.Format == FormatSDJWT:
		return VariantSDJWT
	case c.Format == FormatMdoc:
		return VariantMdoc
	default:
		return VariantUnknown
	}
}

// IssuerMetadata is the issuer's openid-credential-issuer document.
type IssuerMetadata struct {
	CredentialIssuer                  string                              `json:"credential_issuer"`
	AuthorizationServers              []string                            `json:"authorization_servers,omitempty"`
	CredentialEndpoint                string                              `json:"credential_endpoint"`
	CredentialConfigurationsSupported map[string]*CredentialConfiguration `json:"credential_configurations_supported"`
	Display                           []credential.Display                `json:"display,omitempty"`
}

// AuthorizationServerMetadata is the subset of RFC 8414 metadata the wallet
// needs; everything else is opaque to this package.
type AuthorizationServerMetadata struct {
	Issuer                             string   `json:"issuer,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                      string   `json:"token_endpoint,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
}

// CredentialOfferMetadata pairs a parsed offer with its issuer metadata.
type CredentialOfferMetadata struct {
	Offer          *credentialoffer.Offer
	IssuerMetadata *IssuerMetadata
}

// MetadataError reports a metadata endpoint that did not yield a document.
type MetadataError struct {
	URL        string
	StatusCode int
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("fetch metadata from %s: status code %d", e.URL, e.StatusCode)
}

// Service resolves issuer and authorization-server metadata.
type Service struct {
	httpClient *http.Client
	locale     credential.Locale
}

// Opt configures the service.
type Opt func(*Service)

// WithLocale sets the locale used to filter display metadata.
func WithLocale(locale credential.Locale) Opt {
	return func(s *Service) {
		s.locale = locale
	}
}

// NewService returns a metadata service using the given HTTP client. A nil
// client gets a default with a bounded timeout.
func NewService(httpClient *http.Client, opts ...Opt) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	s := &Service{
		httpClient: httpClient,
		locale:     credential.DefaultLocale,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveOffer parses a credential-offer URI and fetches the issuer metadata
// it points at, filtering configuration displays to the service locale.
func (s *Service) ResolveOffer(ctx context.Context, offerURI string) (*CredentialOfferMetadata, error) {
	parser := &credentialoffer.Parser{HTTPClient: s.httpClient}

	offer, err := parser.Parse(ctx, offerURI)
	if err != nil {
		return nil, err
	}

	issuerMetadata, err := s.GetIssuerMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		return nil, err
	}

	for _, configuration := range issuerMetadata.CredentialConfigurationsSupported {
		configuration.Display = FilterDisplays(configuration.Display, s.locale)
	}

	return &CredentialOfferMetadata{
		Offer:          offer,
		IssuerMetadata: issuerMetadata,
	}, nil
}

// GetIssuerMetadata fetches <issuer>/.well-known/openid-credential-issuer.
func (s *Service) GetIssuerMetadata(ctx context.Context, issuerURL string) (*IssuerMetadata, error) {
	metadataURL := strings.TrimSuffix(issuerURL, "/") + issuerMetadataPath

	var metadata IssuerMetadata

	if err := s.getJSON(ctx, metadataURL, &metadata); err != nil {
		return nil, err
	}

	if metadata.CredentialIssuer == "" {
		metadata.CredentialIssuer = issuerURL
	}

	return &metadata, nil
}

// GetAuthorizationServerMetadata resolves the authorization server for an
// issuer: the first listed server when the issuer names any, otherwise the
// derived oauth-authorization-server location.
func (s *Service) GetAuthorizationServerMetadata(
	ctx context.Context,
	issuerMetadata *IssuerMetadata,
) (*AuthorizationServerMetadata, error) {
	metadataURL := ""

	if len(issuerMetadata.AuthorizationServers) > 0 {
		authServerURL := strings.TrimSuffix(issuerMetadata.AuthorizationServers[0], "/")
		metadataURL = authServerURL + authServerPath
	} else {
		derived, err := DeriveAuthorizationServerMetadataURL(issuerMetadata.CredentialIssuer)
		if err != nil {
			return nil, err
		}

		metadataURL = derived
	}

	logger.Debugc(ctx, "fetching authorization server metadata", logfields.WithEndpoint(metadataURL))

	var metadata AuthorizationServerMetadata

	if err := s.getJSON(ctx, metadataURL, &metadata); err != nil {
		return nil, err
	}

	return &metadata, nil
}

// DeriveAuthorizationServerMetadataURL maps an issuer URL onto its RFC 8414
// metadata location: the well-known path is inserted between the authority
// and the issuer path, with any trailing slash stripped.
func DeriveAuthorizationServerMetadataURL(issuerURL string) (string, error) {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return "", fmt.Errorf("parse issuer url: %w", err)
	}

	base := u.Scheme + "://" + u.Host

	if u.Path == "" || u.Path == "/" {
		return base + authServerPath, nil
	}

	return base + authServerPath + strings.TrimSuffix(u.Path, "/"), nil
}

// FilterDisplays returns the displays matching the requested locale, falling
// back to the default locale, then to the unfiltered list.
func FilterDisplays(displays []credential.Display, locale credential.Locale) []credential.Display {
	if len(displays) == 0 {
		return displays
	}

	if filtered := displaysForLocale(displays, locale); len(filtered) > 0 {
		return filtered
	}

	if filtered := displaysForLocale(displays, credential.DefaultLocale); len(filtered) > 0 {
		return filtered
	}

	return displays
}

func displaysForLocale(displays []credential.Display, locale credential.Locale) []credential.Display {
	var filtered []credential.Display

	for _, display := range displays {
		if display.Locale == locale.String() {
			filtered = append(filtered, display)
		}
	}

	return filtered
}

// getJSON fetches a metadata document, retrying transport failures and
// server errors with exponential backoff.
func (s *Service) getJSON(ctx context.Context, metadataURL string, target interface{}) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new metadata request: %w", err))
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", metadataURL, err)
		}

		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			metadataErr := &MetadataError{URL: metadataURL, StatusCode: resp.StatusCode}

			if resp.StatusCode >= http.StatusInternalServerError {
				return metadataErr
			}

			return backoff.Permanent(metadataErr)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read metadata body: %w", err)
		}

		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("decode metadata from %s: %w", metadataURL, err))
		}

		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries),
		ctx,
	)

	return backoff.Retry(operation, b)
}
