// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type testFrame struct {
	Doc      string         `json:"doc,omitempty"`
	Version  *int           `json:"v,omitempty"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		codec, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if name != "" && codec.Name() != name {
			t.Errorf("Lookup(%q).Name() = %q", name, codec.Name())
		}
	}
	if _, err := Lookup("protobuf"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestCodecsShareFieldNames(t *testing.T) {
	version := 7
	frame := testFrame{
		Doc:      "space!entry!abc",
		Version:  &version,
		Snapshot: map[string]any{"fields": map[string]any{"title": map[string]any{"en": "hello"}}},
	}

	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(frame)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}

			var generic map[string]any
			if err := codec.Unmarshal(data, &generic); err != nil {
				t.Fatalf("Unmarshal into map: %v", err)
			}
			if generic["doc"] != "space!entry!abc" {
				t.Errorf("doc key = %v", generic["doc"])
			}
			fields, ok := generic["snapshot"].(map[string]any)["fields"].(map[string]any)
			if !ok {
				t.Fatalf("snapshot.fields decoded as %T", generic["snapshot"].(map[string]any)["fields"])
			}
			if fields["title"].(map[string]any)["en"] != "hello" {
				t.Errorf("fields.title.en = %v", fields["title"])
			}
		})
	}
}

func TestCBORDeterministic(t *testing.T) {
	value := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": true, "y": false}}
	first, err := CBOR.Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := CBOR.Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("CBOR encoding is not deterministic")
		}
	}
	if !CBOR.Binary() || JSON.Binary() {
		t.Error("Binary() flags are wrong")
	}
}
