package codec

import (
	"errors"
	"fmt"
	"io"

	"linkmind/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML snapshot batches
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse reads a document of the form:
//
//	snapshots:
//	  - id: 17659-HW
//	    vendor: Huawei
//	    bandwidth_mhz: 56
//	    ...
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.NodeSnapshot, error) {
	var b batch
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return b.Snapshots, nil
}

// Export writes snapshots as a YAML batch
func (c *YAMLCodec) Export(snapshots []domain.NodeSnapshot, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(batch{Snapshots: snapshots}); err != nil {
		encoder.Close()
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
