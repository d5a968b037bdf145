package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"epinet/internal/simulation"
)

// CSVCodec exports one row per city, for spreadsheets and plotting tools.
// It is export-only: a row set cannot carry the in-flight batches.
type CSVCodec struct{}

// NewCSVCodec creates a new CSV codec
func NewCSVCodec() *CSVCodec {
	return &CSVCodec{}
}

// Format returns the codec format identifier
func (c *CSVCodec) Format() string {
	return "csv"
}

// ContentType returns the MIME type of the exported document
func (c *CSVCodec) ContentType() string {
	return "text/csv"
}

var csvHeader = []string{
	"tick", "elapsed_time", "city",
	"susceptible", "infected", "recovered",
	"population", "effective_r", "outbound_in_transit",
}

// Export writes the header and one row per city
func (c *CSVCodec) Export(snapshot *simulation.Snapshot, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, city := range snapshot.Cities {
		var outbound float64
		for _, edge := range snapshot.Edges.Neighbors(city.ID) {
			outbound += edge.InTransit().Population()
		}

		row := []string{
			strconv.Itoa(snapshot.Tick),
			formatFloat(snapshot.ElapsedTime),
			string(city.ID),
			formatFloat(city.Compartments.Susceptible),
			formatFloat(city.Compartments.Infected),
			formatFloat(city.Compartments.Recovered),
			formatFloat(city.Population()),
			formatFloat(snapshot.EffectiveReproductionNumber(city.ID)),
			formatFloat(outbound),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
