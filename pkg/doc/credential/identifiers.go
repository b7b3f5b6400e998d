/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credential defines the typed persistent forms of wallet
// credentials (SD-JWT VC and mdoc) and the validated identifiers they are
// built from. The constructors validate identifiers; the identifier types
// are plain named strings, so a direct conversion such as ID(s) skips that
// validation.
package credential

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// ID identifies a stored credential. Fresh at construction, immutable after.
type ID string

// NewID generates a fresh credential id.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates a credential id read back from storage.
func ParseID(v string) (ID, error) {
	if _, err := uuid.Parse(v); err != nil {
		return "", fmt.Errorf("credential id is not a valid uuid: %w", err)
	}

	return ID(v), nil
}

func (id ID) String() string {
	return string(id)
}

// SetID groups batch-issued copies of the same logical credential.
type SetID string

// NewSetID generates a fresh credential set id.
func NewSetID() SetID {
	return SetID(uuid.NewString())
}

// ParseSetID validates a credential set id read back from storage.
func ParseSetID(v string) (SetID, error) {
	if v == "" {
		return "", errors.New("credential set id must not be empty")
	}

	return SetID(v), nil
}

func (id SetID) String() string {
	return string(id)
}

// KeyID references the holder key a credential is bound to.
type KeyID string

// NewKeyID validates a key id.
func NewKeyID(v string) (KeyID, error) {
	if v == "" {
		return "", errors.New("key id must not be empty")
	}

	return KeyID(v), nil
}

func (id KeyID) String() string {
	return string(id)
}

// Vct is the verifiable credential type of an SD-JWT VC.
type Vct string

// NewVct validates a vct value.
func NewVct(v string) (Vct, error) {
	if v == "" {
		return "", errors.New("vct must not be empty")
	}

	return Vct(v), nil
}

func (v Vct) String() string {
	return string(v)
}

// Scope is an OAuth2 scope advertised by a credential configuration.
type Scope string

// NewScope validates a scope value.
func NewScope(v string) (Scope, error) {
	if v == "" {
		return "", errors.New("scope must not be empty")
	}

	return Scope(v), nil
}

func (s Scope) String() string {
	return string(s)
}

// Locale is a BCP-47 language tag used to select display metadata.
type Locale string

// DefaultLocale is the fallback used when no display matches the
// requested locale.
const DefaultLocale = Locale("en-US")

// NewLocale validates a BCP-47 language tag.
func NewLocale(v string) (Locale, error) {
	if v == "" {
		return "", errors.New("locale must not be empty")
	}

	if _, err := language.Parse(v); err != nil {
		return "", fmt.Errorf("locale is not a valid bcp-47 tag: %w", err)
	}

	return Locale(v), nil
}

func (l Locale) String() string {
	return string(l)
}
