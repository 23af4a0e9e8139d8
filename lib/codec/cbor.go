// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2).
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown struct fields are ignored so
// a newer peer can add fields without breaking an older one.
var decMode cbor.DecMode

// ErrNotMap is returned by [MarshalMap] when a value does not encode
// to a CBOR map.
var ErrNotMap = errors.New("codec: message must encode to a CBOR map")

// maxNestedLevels bounds decoder recursion. Message bodies come from
// local peers that passed a trust check, but a trusted peer can still
// be buggy.
const maxNestedLevels = 64

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	// Decoding into any must produce map[string]any, not
	// map[interface{}]interface{}, so handlers can inspect
	// loosely-typed bodies without type gymnastics.
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		MaxNestedLevels: maxNestedLevels,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// MarshalMap encodes v and verifies that the result is a CBOR map
// (major type 5). Structs, pointers to structs, string-keyed maps, and
// RawMessage values holding a map all qualify. Everything else fails
// with an error wrapping [ErrNotMap].
func MarshalMap(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: got nil", ErrNotMap)
	}
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !IsMap(data) {
		return nil, fmt.Errorf("%w: got %T", ErrNotMap, v)
	}
	return data, nil
}

// IsMap reports whether data begins with a CBOR map header.
func IsMap(data []byte) bool {
	return len(data) > 0 && data[0]>>5 == 5
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value. Embedding one in a struct
// delays decoding; passing one to Marshal writes it verbatim.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. Used in debug logs when a peer sends something unexpected.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
