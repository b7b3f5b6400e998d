/*
Copyright Gen Digital Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mdoc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ElementType enumerates the CBOR shapes an Element can hold.
type ElementType int

const (
	TypeBytes ElementType = iota
	TypeText
	TypeUint
	TypeInt
	TypeFloat
	TypeBool
	TypeNull
	TypeArray
	TypeMap
	TypeTagged
)

// Element is a validated CBOR value. Arrays and maps are built by traversing
// children first; a failing child fails the whole construction, so a partially
// valid Element is never observable.
type Element struct {
	typ ElementType

	bytes   []byte
	text    string
	uintVal uint64
	intVal  int64
	float   float64
	boolVal bool
	array   []Element
	entries []MapEntry
	tag     uint64
	inner   *Element
}

// MapEntry is a single key/value pair of a CBOR map element.
type MapEntry struct {
	Key   Element
	Value Element
}

// DecodeElement decodes raw CBOR bytes into an Element.
func DecodeElement(data []byte) (Element, error) {
	var v interface{}

	if err := cbor.Unmarshal(data, &v); err != nil {
		return Element{}, fmt.Errorf("unmarshal cbor: %w", err)
	}

	return NewElement(v)
}

// NewElement maps a decoded CBOR value onto an Element.
func NewElement(v interface{}) (Element, error) {
	switch val := v.(type) {
	case nil:
		return Element{typ: TypeNull}, nil
	case []byte:
		return Element{typ: TypeBytes, bytes: val}, nil
	case string:
		return Element{typ: TypeText, text: val}, nil
	case uint64:
		return Element{typ: TypeUint, uintVal: val}, nil
	case int64:
		return Element{typ: TypeInt, intVal: val}, nil
	case float64:
		return Element{typ: TypeFloat, float: val}, nil
	case float32:
		return Element{typ: TypeFloat, float: float64(val)}, nil
	case bool:
		return Element{typ: TypeBool, boolVal: val}, nil
	case []interface{}:
		arr := make([]Element, 0, len(val))

		for i, child := range val {
			elem, err := NewElement(child)
			if err != nil {
				return Element{}, fmt.Errorf("array element %d: %w", i, err)
			}

			arr = append(arr, elem)
		}

		return Element{typ: TypeArray, array: arr}, nil
	case map[interface{}]interface{}:
		entries := make([]MapEntry, 0, len(val))

		for k, child := range val {
			key, err := NewElement(k)
			if err != nil {
				return Element{}, fmt.Errorf("map key: %w", err)
			}

			value, err := NewElement(child)
			if err != nil {
				return Element{}, fmt.Errorf("map value for %v: %w", k, err)
			}

			entries = append(entries, MapEntry{Key: key, Value: value})
		}

		return Element{typ: TypeMap, entries: entries}, nil
	case cbor.Tag:
		inner, err := NewElement(val.Content)
		if err != nil {
			return Element{}, fmt.Errorf("tag %d content: %w", val.Number, err)
		}

		return Element{typ: TypeTagged, tag: val.Number, inner: &inner}, nil
	default:
		return Element{}, fmt.Errorf("unsupported cbor value type %T", v)
	}
}

// Type returns the element's CBOR shape.
func (e Element) Type() ElementType {
	return e.typ
}

// Bytes returns the byte-string value of a TypeBytes element.
func (e Element) Bytes() []byte {
	return e.bytes
}

// Text returns the text value of a TypeText element.
func (e Element) Text() string {
	return e.text
}

// Uint returns the value of a TypeUint element.
func (e Element) Uint() uint64 {
	return e.uintVal
}

// Int returns the value of a TypeInt element.
func (e Element) Int() int64 {
	return e.intVal
}

// Float returns the value of a TypeFloat element.
func (e Element) Float() float64 {
	return e.float
}

// Bool returns the value of a TypeBool element.
func (e Element) Bool() bool {
	return e.boolVal
}

// Array returns the children of a TypeArray element.
func (e Element) Array() []Element {
	return e.array
}

// Entries returns the key/value pairs of a TypeMap element.
func (e Element) Entries() []MapEntry {
	return e.entries
}

// Tag returns the tag number of a TypeTagged element.
func (e Element) Tag() uint64 {
	return e.tag
}

// Content returns the inner element of a TypeTagged element.
func (e Element) Content() *Element {
	return e.inner
}

// MapValue looks up the value for a text key in a TypeMap element.
func (e Element) MapValue(key string) (Element, bool) {
	for _, entry := range e.entries {
		if entry.Key.typ == TypeText && entry.Key.text == key {
			return entry.Value, true
		}
	}

	return Element{}, false
}
