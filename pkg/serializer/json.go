// Package serializer provides the default Serializer implementations for
// the UNP engine: a JSON codec for arbitrary Go values, and a compact
// length-prefixed binary codec for payload types that opt into it.
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/strand-protocol/unp/pkg/protocol"
)

// JSON serializes payloads with encoding/json. It is the engine's default:
// the corpus has no third-party JSON library to prefer over the standard
// library for this ambient concern (see DESIGN.md).
type JSON struct{}

var _ protocol.Serializer = JSON{}

func (JSON) Serialize(v any, _ protocol.Params) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unp/serializer: json marshal: %w", err)
	}
	return b, nil
}

func (JSON) Unserialize(b []byte, _ protocol.Params) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("unp/serializer: json unmarshal: %w", err)
	}
	return v, nil
}
