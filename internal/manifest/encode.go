package manifest

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Encode serializes the sanitized document back to TOML. The encoder emits
// map keys in sorted order, so equal documents produce identical bytes —
// required for the skeleton to hash reproducibly across runs.
func (s *Sanitized) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.Doc); err != nil {
		return nil, fmt.Errorf("encode manifest %s: %w", s.Rel, err)
	}
	return buf.Bytes(), nil
}
