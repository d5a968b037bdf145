// Package report renders snapshots as plain text for terminals and logs.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"epinet/internal/domain"
	"epinet/internal/simulation"

	"github.com/dustin/go-humanize"
)

// TextObserver writes a text report of every Nth snapshot it receives
type TextObserver struct {
	mu    sync.Mutex
	w     io.Writer
	every int
	err   error
}

// NewTextObserver creates an observer writing to w. every <= 1 reports each step.
func NewTextObserver(w io.Writer, every int) *TextObserver {
	if every < 1 {
		every = 1
	}
	return &TextObserver{w: w, every: every}
}

// Receive implements simulation.Observer
func (o *TextObserver) Receive(snapshot *simulation.Snapshot) {
	if snapshot.Tick%o.every != 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return
	}
	o.err = Write(o.w, snapshot)
}

// Err returns the first write error, after which the observer stays silent
func (o *TextObserver) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Write renders a single snapshot
func Write(w io.Writer, snapshot *simulation.Snapshot) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n====== Day %.2f (tick %s) ======\n", snapshot.ElapsedTime, humanize.Comma(int64(snapshot.Tick)))
	r0 := snapshot.BasicReproductionNumber
	fmt.Fprintf(&b, "Basic Reproduction Number (R0): %.2f, %s\n\n", r0, snapshot.Parameters.Classify())

	for _, city := range snapshot.Cities {
		c := city.Compartments
		fmt.Fprintf(&b, "City %s: S=%s, I=%s, R=%s, N=%s, Reff=%.2f\n",
			city.ID,
			count(c.Susceptible), count(c.Infected), count(c.Recovered),
			count(city.Population()),
			snapshot.EffectiveReproductionNumber(city.ID),
		)
	}

	b.WriteString("\nConnections:\n")
	for _, city := range snapshot.Cities {
		edges := snapshot.Edges.Neighbors(city.ID)
		connections := make([]string, 0, len(edges))
		for _, e := range edges {
			connections = append(connections, fmt.Sprintf("%s(%g)", e.Neighbor, e.Distance))
		}
		if len(connections) == 0 {
			connections = append(connections, "none")
		}
		fmt.Fprintf(&b, "  %s -> %s\n", city.ID, strings.Join(connections, ", "))
	}

	if flows := snapshot.Edges.Flows(); len(flows) > 0 {
		fmt.Fprintf(&b, "\nIn transit (%d batches, %s people):\n", len(flows), count(snapshot.InTransit().Population()))
		for _, f := range flows {
			b.WriteString(describeFlow(f))
		}
	}
	b.WriteString("=====================\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func describeFlow(f domain.TransitFlow) string {
	return fmt.Sprintf("  %s -> %s: %s people, %.0f%% of the way\n",
		f.From, f.To, count(f.Compartments.Population()), f.Progress()*100)
}

// count formats a compartment size with thousands separators
func count(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}
