/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logfields

import (
	"go.uber.org/zap"
)

// Log Fields.
const (
	FieldConfigurationID = "configurationID"
	FieldCredentialID    = "credentialID"
	FieldDocType         = "docType"
	FieldEndpoint        = "endpoint"
	FieldFormat          = "format"
	FieldIssuer          = "issuer"
	FieldKeyID           = "keyID"
	FieldSessionID       = "sessionID"
	FieldStatusCode      = "statusCode"
	FieldVct             = "vct"
)

// WithConfigurationID sets the ConfigurationID field.
func WithConfigurationID(configurationID string) zap.Field {
	return zap.String(FieldConfigurationID, configurationID)
}

// WithCredentialID sets the CredentialID field.
func WithCredentialID(credentialID string) zap.Field {
	return zap.String(FieldCredentialID, credentialID)
}

// WithDocType sets the DocType field.
func WithDocType(docType string) zap.Field {
	return zap.String(FieldDocType, docType)
}

// WithEndpoint sets the Endpoint field.
func WithEndpoint(endpoint string) zap.Field {
	return zap.String(FieldEndpoint, endpoint)
}

// WithFormat sets the Format field.
func WithFormat(format string) zap.Field {
	return zap.String(FieldFormat, format)
}

// WithIssuer sets the Issuer field.
func WithIssuer(issuer string) zap.Field {
	return zap.String(FieldIssuer, issuer)
}

// WithKeyID sets the KeyID field.
func WithKeyID(keyID string) zap.Field {
	return zap.String(FieldKeyID, keyID)
}

// WithSessionID sets the SessionID field.
func WithSessionID(sessionID string) zap.Field {
	return zap.String(FieldSessionID, sessionID)
}

// WithStatusCode sets the StatusCode field.
func WithStatusCode(statusCode int) zap.Field {
	return zap.Int(FieldStatusCode, statusCode)
}

// WithVct sets the Vct field.
func WithVct(vct string) zap.Field {
	return zap.String(FieldVct, vct)
}
