// Package nutrients reports how the essential exchange reactions of a model are bounded.
// It is a diagnostic: nothing here fails the pipeline or changes the model.
package nutrients

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"metabuddy/metnet"
)

// DefaultEssential lists the exchanges checked when none are configured: carbon, nitrogen,
// phosphate, sulfate and the key ions.
var DefaultEssential = []string{
	"EX_glc__D_e",
	"EX_nh4_e",
	"EX_pi_e",
	"EX_so4_e",
	"EX_mg2_e",
	"EX_ca2_e",
	"EX_fe2_e",
}

// Entry is the status of one essential exchange.
type Entry struct {
	ID         string
	Found      bool
	LowerBound float64
	UpperBound float64
}

// Uptake reports whether the exchange lets the nutrient in (negative lower bound).
func (e Entry) Uptake() bool {
	return e.Found && e.LowerBound < 0
}

// Report holds one entry per checked id, in the order requested.
type Report struct {
	Model   string
	Entries []Entry
}

// Check looks up each id in m. Missing reactions are reported, not returned as errors.
func Check(m *metnet.Model, ids []string) Report {
	rep := Report{Model: m.ID, Entries: make([]Entry, 0, len(ids))}
	for _, id := range ids {
		e := Entry{ID: id}
		if r, ok := m.Reaction(id); ok {
			e.Found = true
			e.LowerBound, e.UpperBound = r.LowerBound, r.UpperBound
		}
		rep.Entries = append(rep.Entries, e)
	}
	return rep
}

// Missing returns the ids absent from the model.
func (r Report) Missing() []string {
	var out []string
	for _, e := range r.Entries {
		if !e.Found {
			out = append(out, e.ID)
		}
	}
	return out
}

// Closed returns the ids present in the model that allow no uptake.
func (r Report) Closed() []string {
	var out []string
	for _, e := range r.Entries {
		if e.Found && !e.Uptake() {
			out = append(out, e.ID)
		}
	}
	return out
}

// Log emits one structured line per entry.
func (r Report) Log() {
	for _, e := range r.Entries {
		if !e.Found {
			log.Warn().Str("model", r.Model).Str("nutrient", e.ID).Msg("Essential nutrient not found in the model")
			continue
		}
		log.Info().
			Str("model", r.Model).
			Str("nutrient", e.ID).
			Float64("lower_bound", e.LowerBound).
			Float64("upper_bound", e.UpperBound).
			Bool("uptake", e.Uptake()).
			Msg("Essential nutrient bounds")
	}
}

// WriteTable prints the human readable report.
func (r Report) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Checking essential nutrients availability:"); err != nil {
		return err
	}
	for _, e := range r.Entries {
		var err error
		if e.Found {
			_, err = fmt.Fprintf(w, "%s: lower bound = %g, upper bound = %g\n", e.ID, e.LowerBound, e.UpperBound)
		} else {
			_, err = fmt.Fprintf(w, "%s not found in the model.\n", e.ID)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
