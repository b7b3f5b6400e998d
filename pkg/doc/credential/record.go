/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trustbloc/wallet-core/pkg/doc/mdoc"
)

// State is the lifecycle state of a stored credential.
type State string

const (
	StateActive  State = "ACTIVE"
	StateRevoked State = "REVOKED"
	StateExpired State = "EXPIRED"
)

// Display is a per-locale presentation descriptor for a credential.
type Display struct {
	Name            string `json:"name,omitempty"`
	Locale          string `json:"locale,omitempty"`
	Logo            *Logo  `json:"logo,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
}

// Logo is the display logo of a credential.
type Logo struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// Record is a persisted credential, either SD-JWT VC or mdoc.
type Record interface {
	// RecordID returns the credential id.
	RecordID() ID
	// RecordKeyID returns the bound holder key id.
	RecordKeyID() KeyID
	// RecordSetID returns the credential set id.
	RecordSetID() SetID
	// RecordState returns the lifecycle state.
	RecordState() State

	isRecord()
}

// SDJWTRecord is the persistent form of an SD-JWT VC.
type SDJWTRecord struct {
	ID                  ID
	KeyID               KeyID
	SetID               SetID
	State               State
	ExpiresAt           *time.Time
	Vct                 Vct
	EncodedIssuerSigned string
	Disclosures         []string
	Displays            []Display
}

func (r *SDJWTRecord) RecordID() ID { return r.ID }

func (r *SDJWTRecord) RecordKeyID() KeyID { return r.KeyID }

func (r *SDJWTRecord) RecordSetID() SetID { return r.SetID }

func (r *SDJWTRecord) RecordState() State { return r.State }

func (r *SDJWTRecord) isRecord() {}

// MdocRecord is the persistent form of an ISO 18013-5 mdoc.
type MdocRecord struct {
	ID        ID
	KeyID     KeyID
	SetID     SetID
	State     State
	ExpiresAt *time.Time
	DocType   mdoc.DocType
	Mdoc      []byte
	Displays  []Display
}

func (r *MdocRecord) RecordID() ID { return r.ID }

func (r *MdocRecord) RecordKeyID() KeyID { return r.KeyID }

func (r *MdocRecord) RecordSetID() SetID { return r.SetID }

func (r *MdocRecord) RecordState() State { return r.State }

func (r *MdocRecord) isRecord() {}

// NewSDJWTRecord builds an SD-JWT record with a fresh credential id and
// state ACTIVE. expiresAt, when set, must lie in the future.
func NewSDJWTRecord(
	keyID KeyID,
	setID SetID,
	vct Vct,
	encodedIssuerSigned string,
	disclosures []string,
	expiresAt *time.Time,
	displays []Display,
) (*SDJWTRecord, error) {
	if encodedIssuerSigned == "" {
		return nil, errors.New("issuer-signed jwt must not be empty")
	}

	if err := validateExpiry(expiresAt); err != nil {
		return nil, err
	}

	return &SDJWTRecord{
		ID:                  NewID(),
		KeyID:               keyID,
		SetID:               setID,
		State:               StateActive,
		ExpiresAt:           expiresAt,
		Vct:                 vct,
		EncodedIssuerSigned: encodedIssuerSigned,
		Disclosures:         disclosures,
		Displays:            displays,
	}, nil
}

// NewMdocRecord builds an mdoc record with a fresh credential id and state
// ACTIVE. The mdoc bytes are validated structurally before the record exists.
func NewMdocRecord(
	keyID KeyID,
	setID SetID,
	docType mdoc.DocType,
	mdocBytes []byte,
	expiresAt *time.Time,
	displays []Display,
) (*MdocRecord, error) {
	if _, err := mdoc.Parse(mdocBytes); err != nil {
		return nil, fmt.Errorf("mdoc record: %w", err)
	}

	if err := validateExpiry(expiresAt); err != nil {
		return nil, err
	}

	return &MdocRecord{
		ID:        NewID(),
		KeyID:     keyID,
		SetID:     setID,
		State:     StateActive,
		ExpiresAt: expiresAt,
		DocType:   docType,
		Mdoc:      mdocBytes,
		Displays:  displays,
	}, nil
}

func validateExpiry(expiresAt *time.Time) error {
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return errors.New("expiresAt must lie in the future")
	}

	return nil
}

// DecodeError reports a record that could not be decoded from its persisted
// form, naming the offending credential id when known.
type DecodeError struct {
	Format string
	ID     string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s record", e.Format)

	if e.ID != "" {
		msg += " " + e.ID
	}

	msg += ": " + e.Reason

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// persistedRecord is the canonical JSON form. Key names are part of the
// storage format and must not change.
type persistedRecord struct {
	ID                  string     `json:"Id"`
	KeyID               string     `json:"keyId"`
	SetID               string     `json:"credentialSetId"`
	State               string     `json:"credentialState"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	Displays            []Display  `json:"displays,omitempty"`
	Vct                 string     `json:"vct,omitempty"`
	EncodedIssuerSigned string     `json:"encodedIssuerSigned,omitempty"`
	Disclosures         []string   `json:"disclosures,omitempty"`
	DocType             string     `json:"docType,omitempty"`
	Mdoc                string     `json:"mdoc,omitempty"`
}

// Encode serializes a record to its canonical JSON form. Encoding an
// in-memory record never fails.
func Encode(r Record) []byte {
	p := persistedRecord{}

	switch rec := r.(type) {
	case *SDJWTRecord:
		p = persistedRecord{
			ID:                  rec.ID.String(),
			KeyID:               rec.KeyID.String(),
			SetID:               rec.SetID.String(),
			State:               string(rec.State),
			ExpiresAt:           rec.ExpiresAt,
			Displays:            rec.Displays,
			Vct:                 rec.Vct.String(),
			EncodedIssuerSigned: rec.EncodedIssuerSigned,
			Disclosures:         rec.Disclosures,
		}
	case *MdocRecord:
		p = persistedRecord{
			ID:        rec.ID.String(),
			KeyID:     rec.KeyID.String(),
			SetID:     rec.SetID.String(),
			State:     string(rec.State),
			ExpiresAt: rec.ExpiresAt,
			Displays:  rec.Displays,
			DocType:   rec.DocType.String(),
			Mdoc:      base64.RawURLEncoding.EncodeToString(rec.Mdoc),
		}
	}

	data, _ := json.Marshal(p) //nolint:errchkjson

	return data
}

// Decode deserializes a persisted record, dispatching on which credential
// payload key is present. Unknown fields are dropped.
func Decode(data []byte) (Record, error) {
	var p persistedRecord

	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &DecodeError{Format: "credential", Reason: "invalid json", Err: err}
	}

	id, err := ParseID(p.ID)
	if err != nil {
		return nil, &DecodeError{Format: "credential", ID: p.ID, Reason: "invalid id", Err: err}
	}

	keyID, err := NewKeyID(p.KeyID)
	if err != nil {
		return nil, &DecodeError{Format: "credential", ID: p.ID, Reason: "invalid key id", Err: err}
	}

	setID, err := ParseSetID(p.SetID)
	if err != nil {
		return nil, &DecodeError{Format: "credential", ID: p.ID, Reason: "invalid set id", Err: err}
	}

	state, err := parseState(p.State)
	if err != nil {
		return nil, &DecodeError{Format: "credential", ID: p.ID, Reason: "invalid state", Err: err}
	}

	switch {
	case p.Mdoc != "":
		docType, err := mdoc.NewDocType(p.DocType)
		if err != nil {
			return nil, &DecodeError{Format: "mdoc", ID: p.ID, Reason: "invalid doc type", Err: err}
		}

		mdocBytes, err := base64.RawURLEncoding.DecodeString(p.Mdoc)
		if err != nil {
			return nil, &DecodeError{Format: "mdoc", ID: p.ID, Reason: "mdoc is not base64url", Err: err}
		}

		if _, err := mdoc.Parse(mdocBytes); err != nil {
			return nil, &DecodeError{Format: "mdoc", ID: p.ID, Reason: "malformed mdoc bytes", Err: err}
		}

		return &MdocRecord{
			ID:        id,
			KeyID:     keyID,
			SetID:     setID,
			State:     state,
			ExpiresAt: p.ExpiresAt,
			DocType:   docType,
			Mdoc:      mdocBytes,
			Displays:  p.Displays,
		}, nil
	case p.EncodedIssuerSigned != "":
		vct, err := NewVct(p.Vct)
		if err != nil {
			return nil, &DecodeError{Format: "sd-jwt", ID: p.ID, Reason: "invalid vct", Err: err}
		}

		return &SDJWTRecord{
			ID:                  id,
			KeyID:               keyID,
			SetID:               setID,
			State:               state,
			ExpiresAt:           p.ExpiresAt,
			Vct:                 vct,
			EncodedIssuerSigned: p.EncodedIssuerSigned,
			Disclosures:         p.Disclosures,
			Displays:            p.Displays,
		}, nil
	default:
		return nil, &DecodeError{Format: "credential", ID: p.ID, Reason: "neither mdoc nor encodedIssuerSigned present"}
	}
}

func parseState(v string) (State, error) {
	switch State(v) {
	case StateActive, StateRevoked, StateExpired:
		return State(v), nil
	case "":
		return StateActive, nil
	default:
		return "", fmt.Errorf("unknown credential state %q", v)
	}
}
