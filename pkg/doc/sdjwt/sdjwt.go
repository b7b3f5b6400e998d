/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sdjwt parses the SD-JWT combined format for issuance:
// <issuer-signed JWT>~<disclosure>~...~<optional key-binding JWT>.
package sdjwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jws"
)

const disclosureSeparator = "~"

// Combined is a parsed SD-JWT combined-format credential.
type Combined struct {
	// IssuerSignedJWT is the compact issuer-signed JWT (first segment).
	IssuerSignedJWT string
	// Disclosures are the base64url-encoded disclosure segments, in order.
	Disclosures []string
	// KeyBindingJWT is the optional trailing key-binding JWT.
	KeyBindingJWT string
}

// Parse splits an SD-JWT combined-format string. The first segment must be a
// well-formed compact JWS; trailing segments are disclosures. A final segment
// that itself parses as a compact JWS is the key-binding JWT.
func Parse(combined string) (*Combined, error) {
	if combined == "" {
		return nil, errors.New("empty sd-jwt")
	}

	segments := strings.Split(combined, disclosureSeparator)

	issuerSigned := segments[0]

	if _, err := jws.Parse([]byte(issuerSigned)); err != nil {
		return nil, fmt.Errorf("parse issuer-signed jwt: %w", err)
	}

	rest := segments[1:]

	// An issuance-form SD-JWT ends with the separator, leaving one empty
	// trailing segment and no key-binding JWT.
	var keyBinding string

	if len(rest) > 0 {
		last := rest[len(rest)-1]
		if last == "" {
			rest = rest[:len(rest)-1]
		} else if isCompactJWS(last) {
			keyBinding = last
			rest = rest[:len(rest)-1]
		}
	}

	for i, disclosure := range rest {
		if disclosure == "" {
			return nil, fmt.Errorf("empty disclosure at position %d", i)
		}
	}

	return &Combined{
		IssuerSignedJWT: issuerSigned,
		Disclosures:     rest,
		KeyBindingJWT:   keyBinding,
	}, nil
}

// Serialize reassembles the combined form. Round-trips with Parse.
func (c *Combined) Serialize() string {
	var b strings.Builder

	b.WriteString(c.IssuerSignedJWT)

	for _, disclosure := range c.Disclosures {
		b.WriteString(disclosureSeparator)
		b.WriteString(disclosure)
	}

	b.WriteString(disclosureSeparator)

	if c.KeyBindingJWT != "" {
		b.WriteString(c.KeyBindingJWT)
	}

	return b.String()
}

func isCompactJWS(s string) bool {
	if strings.Count(s, ".") != 2 {
		return false
	}

	_, err := jws.Parse([]byte(s))

	return err == nil
}
