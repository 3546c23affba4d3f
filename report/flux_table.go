// Package report writes the artifacts of a pipeline run: flux tables, flux charts and the
// run ledger.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"metabuddy/fba"
	"metabuddy/metnet"
	common "metabuddy/utils"
)

// FluxTableHeader is the header row of every flux table.
var FluxTableHeader = []string{"Reaction ID", "Reaction Name", "Flux Value"}

// FluxRow is one reaction of a flux table. HasFlux is false when the solve was infeasible.
type FluxRow struct {
	ID      string
	Name    string
	Flux    float64
	HasFlux bool
}

// FluxRows builds rows for the given reactions, in their order. A nil rxns means every
// reaction of m.
func FluxRows(m *metnet.Model, sol *fba.Solution, rxns []metnet.Reaction) []FluxRow {
	if rxns == nil {
		rxns = m.Reactions()
	}
	rows := make([]FluxRow, 0, len(rxns))
	for _, r := range rxns {
		v, ok := sol.Flux(r.ID)
		rows = append(rows, FluxRow{ID: r.ID, Name: r.Name, Flux: v, HasFlux: ok})
	}
	return rows
}

// WriteFluxTable writes rows as CSV to path, replacing any existing file atomically.
func WriteFluxTable(path string, rows []FluxRow) error {
	return common.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeFluxTable(w, rows)
	})
}

// EncodeFluxTable writes rows as CSV. Reactions without flux get an empty value cell.
func EncodeFluxTable(w io.Writer, rows []FluxRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(FluxTableHeader); err != nil {
		return err
	}
	for _, r := range rows {
		value := ""
		if r.HasFlux {
			value = strconv.FormatFloat(r.Flux, 'g', -1, 64)
		}
		if err := writer.Write([]string{r.ID, r.Name, value}); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
