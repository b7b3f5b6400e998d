/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mdoc decodes and structurally validates ISO/IEC 18013-5 mobile
// documents as they arrive from an OpenID4VCI credential endpoint: a
// CBOR-encoded IssuerSigned structure carrying nameSpaces and a COSE_Sign1
// issuerAuth.
package mdoc

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// DocType identifies the document type of an mdoc, e.g. "org.iso.18013.5.1.mDL".
type DocType string

// NewDocType validates a document type string.
func NewDocType(v string) (DocType, error) {
	if v == "" {
		return "", errors.New("doc type must not be empty")
	}

	return DocType(v), nil
}

func (d DocType) String() string {
	return string(d)
}

// NameSpace identifies an issuer namespace within an mdoc.
type NameSpace string

// IssuerSignedItemBytes holds a single #6.24-tagged IssuerSignedItem.
type IssuerSignedItemBytes cbor.RawMessage

// IssuerSignedItem is one disclosed data element.
type IssuerSignedItem struct {
	DigestID          uint        `cbor:"digestID"`
	Random            []byte      `cbor:"random"`
	ElementIdentifier string      `cbor:"elementIdentifier"`
	ElementValue      interface{} `cbor:"elementValue"`
}

// IssuerSignedItem decodes the tagged item bytes.
func (b IssuerSignedItemBytes) IssuerSignedItem() (*IssuerSignedItem, error) {
	if len(b) == 0 {
		return nil, errors.New("empty issuer signed item bytes")
	}

	var item IssuerSignedItem

	if err := cbor.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("unmarshal issuer signed item: %w", err)
	}

	return &item, nil
}

// IssuerSigned is the issuer-provided part of an mdoc as returned by a
// credential endpoint.
type IssuerSigned struct {
	NameSpaces map[NameSpace][]IssuerSignedItemBytes `cbor:"nameSpaces"`
	IssuerAuth cose.UntaggedSign1Message             `cbor:"issuerAuth"`
}

// DecodeError reports malformed mdoc bytes.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode mdoc: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("decode mdoc: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Parse decodes CBOR bytes into an IssuerSigned and validates that the
// top-level structure is a map carrying nameSpaces and a COSE_Sign1
// issuerAuth.
func Parse(data []byte) (*IssuerSigned, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}

	// Structural pass through the element model first, so malformed documents
	// fail with a shape error instead of a struct-mapping error.
	elem, err := DecodeElement(data)
	if err != nil {
		return nil, &DecodeError{Reason: "not valid cbor", Err: err}
	}

	if elem.Type() != TypeMap {
		return nil, &DecodeError{Reason: "top-level structure is not a map"}
	}

	if _, ok := elem.MapValue("nameSpaces"); !ok {
		return nil, &DecodeError{Reason: "missing nameSpaces"}
	}

	issuerAuth, ok := elem.MapValue("issuerAuth")
	if !ok {
		return nil, &DecodeError{Reason: "missing issuerAuth"}
	}

	// COSE_Sign1 is a 4-element array: protected, unprotected, payload, signature.
	authElem := issuerAuth
	if authElem.Type() == TypeTagged {
		authElem = *authElem.Content()
	}

	if authElem.Type() != TypeArray || len(authElem.Array()) != 4 {
		return nil, &DecodeError{Reason: "issuerAuth is not a COSE_Sign1 structure"}
	}

	var signed IssuerSigned

	if err := cbor.Unmarshal(data, &signed); err != nil {
		return nil, &DecodeError{Reason: "unmarshal issuer signed", Err: err}
	}

	return &signed, nil
}
