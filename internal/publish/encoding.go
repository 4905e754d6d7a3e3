// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encoder serializes readings for the wire.
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Name() string
}

type jsonEncoder struct{}

func (jsonEncoder) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonEncoder) Name() string                  { return "json" }

type cborEncoder struct {
	mode cbor.EncMode
}

func (e cborEncoder) Marshal(v any) ([]byte, error) { return e.mode.Marshal(v) }
func (cborEncoder) Name() string                    { return "cbor" }

// NewEncoder returns the encoder for name ("json" or "cbor"). CBOR output
// uses struct json tags as map keys so both encodings share field names.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return jsonEncoder{}, nil
	case "cbor":
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeRFC3339
		mode, err := opts.EncMode()
		if err != nil {
			return nil, fmt.Errorf("cbor encoder: %w", err)
		}
		return cborEncoder{mode: mode}, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}
