// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes collaboration frames.
type Codec interface {
	// Name is the configuration name of the codec ("json", "cbor").
	Name() string

	// Binary reports whether encoded frames must be sent as binary
	// websocket messages.
	Binary() bool

	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default text codec.
var JSON Codec = jsonCodec{}

// CBOR is the binary codec.
var CBOR Codec = newCBORCodec()

// Lookup returns the codec registered under name. The empty name
// selects JSON.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q (want json or cbor)", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func newCBORCodec() cborCodec {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{encMode: encMode, decMode: decMode}
}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Binary() bool { return true }

func (c cborCodec) Marshal(v any) ([]byte, error) { return c.encMode.Marshal(v) }

func (c cborCodec) Unmarshal(data []byte, v any) error { return c.decMode.Unmarshal(data, v) }
