package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"linkmind/internal/domain"
)

// JSONCodec handles JSON snapshot batches
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a {"snapshots": [...]} document
func (c *JSONCodec) Parse(r io.Reader) ([]domain.NodeSnapshot, error) {
	var b batch
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return b.Snapshots, nil
}

// Export writes snapshots as an indented JSON batch
func (c *JSONCodec) Export(snapshots []domain.NodeSnapshot, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(batch{Snapshots: snapshots}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
