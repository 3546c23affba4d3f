package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"metabuddy/fba"
	"metabuddy/metnet"
	"metabuddy/report"
)

// Output file names, relative to Config.OutputDir.
func (p *Pipeline) fluxTablePath(label string) string {
	return filepath.Join(p.cfg.OutputDir, label+".csv")
}

func (p *Pipeline) gapFilledModelPath(label string) string {
	return filepath.Join(p.cfg.OutputDir, label+"_gap_filled_model.json")
}

func (p *Pipeline) gapFilledFluxPath(label string) string {
	return filepath.Join(p.cfg.OutputDir, label+"_gap_filled_flux_distribution.csv")
}

func (p *Pipeline) unresolvedModelPath(label string) string {
	return filepath.Join(p.cfg.OutputDir, label+"_unresolved_model.json")
}

func (p *Pipeline) chartPath(label string) string {
	return filepath.Join(p.cfg.OutputDir, label+"_flux.svg")
}

// persistInitial writes the flux table of the first solve.
func (p *Pipeline) persistInitial(out *Outcome) error {
	path := p.fluxTablePath(out.Label)
	if err := p.writeFlux(path, out.Model, out.Initial); err != nil {
		return err
	}
	out.Files = append(out.Files, path)
	p.writeChart(out, p.chartPath(out.Label), out.Model, out.Initial)
	return nil
}

// persistUnresolved keeps the unrepaired model for inspection under a name that cannot be
// mistaken for a gap-filled one.
func (p *Pipeline) persistUnresolved(out *Outcome) error {
	if err := p.persistInitial(out); err != nil {
		return err
	}
	path := p.unresolvedModelPath(out.Label)
	if err := metnet.Save(path, out.Model, out.Objective); err != nil {
		return fmt.Errorf("pipeline: save unresolved model: %w", err)
	}
	out.Files = append(out.Files, path)
	log.Warn().Str("organism", out.Organism).Str("path", path).Msg("Unresolved model saved for inspection")
	return nil
}

// persistRefined writes the initial flux table, the gap-filled model and its flux table.
func (p *Pipeline) persistRefined(out *Outcome) error {
	if err := p.persistInitial(out); err != nil {
		return err
	}
	modelPath := p.gapFilledModelPath(out.Label)
	if err := metnet.Save(modelPath, out.Model, out.Objective); err != nil {
		return fmt.Errorf("pipeline: save gap-filled model: %w", err)
	}
	out.Files = append(out.Files, modelPath)

	fluxPath := p.gapFilledFluxPath(out.Label)
	if err := p.writeFlux(fluxPath, out.Model, out.Refined); err != nil {
		return err
	}
	out.Files = append(out.Files, fluxPath)
	p.writeChart(out, p.chartPath(out.Label+"_gap_filled"), out.Model, out.Refined)

	log.Info().Str("organism", out.Organism).Str("model", modelPath).Str("flux", fluxPath).
		Msg("Gap-filled model and flux distribution saved")
	return nil
}

func (p *Pipeline) writeFlux(path string, m *metnet.Model, sol *fba.Solution) error {
	if err := report.WriteFluxTable(path, report.FluxRows(m, sol, nil)); err != nil {
		return fmt.Errorf("pipeline: write flux table: %w", err)
	}
	return nil
}

// writeChart is best effort: a model without flux has nothing to draw.
func (p *Pipeline) writeChart(out *Outcome, path string, m *metnet.Model, sol *fba.Solution) {
	if !p.cfg.Chart {
		return
	}
	title := fmt.Sprintf("%s flux distribution", out.Label)
	if err := report.WriteFluxChart(path, title, report.FluxRows(m, sol, nil), 0); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Flux chart skipped")
		return
	}
	out.Files = append(out.Files, path)
}
