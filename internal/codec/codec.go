// Package codec reads snapshot batches and writes the CSV artefacts
// (ledger export and simulation audit log).
package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"linkmind/internal/domain"
)

// Importer parses a batch of node snapshots from a given format
type Importer interface {
	Parse(r io.Reader) ([]domain.NodeSnapshot, error)
	Format() string
}

// Exporter writes a batch of node snapshots in a given format
type Exporter interface {
	Export(snapshots []domain.NodeSnapshot, w io.Writer) error
	Format() string
}

// Codec is both an Importer and an Exporter
type Codec interface {
	Importer
	Exporter
}

// batch is the on-disk envelope shared by every snapshot format
type batch struct {
	Snapshots []domain.NodeSnapshot `json:"snapshots" yaml:"snapshots"`
}

// ForFormat returns the codec registered for a format name ("json", "yaml", "yml")
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// ForPath picks a codec from a file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(filepath.Ext(path))
}
