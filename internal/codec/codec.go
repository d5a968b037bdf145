// Package codec converts simulation snapshots to and from external formats.
package codec

import (
	"io"

	"epinet/internal/simulation"
)

// Importer interface for reading snapshots back from various formats
type Importer interface {
	Parse(r io.Reader) (*simulation.Snapshot, error)
	Format() string
}

// Exporter interface for writing snapshots to various formats
type Exporter interface {
	Export(snapshot *simulation.Snapshot, w io.Writer) error
	Format() string
	ContentType() string
}

// Exporters returns every available exporter
func Exporters() []Exporter {
	return []Exporter{NewJSONCodec(), NewYAMLCodec(), NewCSVCodec()}
}

// ExporterFor returns the exporter for format, if any
func ExporterFor(format string) (Exporter, bool) {
	for _, e := range Exporters() {
		if e.Format() == format {
			return e, true
		}
	}
	return nil, false
}
