// Package pipeline sequences a species analysis run: sub-model extraction, nutrient
// check, objective selection, flux balance solve, dead reaction detection, conditional
// gap-filling, re-solve and persistence of the artifacts.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"metabuddy/fba"
	"metabuddy/gapfill"
	"metabuddy/metnet"
	"metabuddy/nutrients"
	"metabuddy/report"
)

var ErrEmptyCommunity = errors.New("pipeline: nil community model")

// ErrRepairBlocked is returned when the selected gap-fill solution, once merged, still
// leaves the objective without flux. It wraps gapfill.ErrGapFillExhausted.
var ErrRepairBlocked = fmt.Errorf("%w: refined model still blocked", gapfill.ErrGapFillExhausted)

// Config is everything a run needs to know.
type Config struct {
	Organism string
	// Label prefixes the output files; defaults to Organism.
	Label         string
	Essential     []string
	ZeroTolerance float64
	OutputDir     string
	// Demands are the gap-fill probe reactions; nil means the sub-model exchanges.
	Demands       []string
	Gate          Gate
	Policy        gapfill.Policy
	GapFill       gapfill.Options
	SolverTimeout time.Duration
	Chart         bool
	Workers       int
	StrictTags    bool
}

func (c *Config) normalize() {
	if c.Label == "" {
		c.Label = c.Organism
	}
	if c.Essential == nil {
		c.Essential = nutrients.DefaultEssential
	}
	if c.ZeroTolerance <= 0 {
		c.ZeroTolerance = fba.ZeroTolerance
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Gate == "" {
		c.Gate = GateObjectiveExists
	}
	if c.Policy == "" {
		c.Policy = gapfill.PolicyFirst
	}
	if c.GapFill.Tolerance <= 0 {
		c.GapFill.Tolerance = c.ZeroTolerance
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

// Pipeline runs species analyses against one configuration.
type Pipeline struct {
	cfg    Config
	solver fba.Solver
	filler gapfill.Filler
	ledger *report.Ledger

	outMu sync.Mutex
	out   io.Writer
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSolver replaces the default simplex solver.
func WithSolver(s fba.Solver) Option { return func(p *Pipeline) { p.solver = s } }

// WithFiller replaces the default LP gap-filler.
func WithFiller(f gapfill.Filler) Option { return func(p *Pipeline) { p.filler = f } }

// WithLedger records every run in l.
func WithLedger(l *report.Ledger) Option { return func(p *Pipeline) { p.ledger = l } }

// WithOutput sends the human readable tables to w instead of stdout.
func WithOutput(w io.Writer) Option { return func(p *Pipeline) { p.out = w } }

// New builds a pipeline. Without options it solves with fba.SimplexSolver and fills with
// gapfill.LPFiller.
func New(cfg Config, opts ...Option) *Pipeline {
	cfg.normalize()
	p := &Pipeline{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(p)
	}
	if p.solver == nil {
		p.solver = fba.NewSimplexSolver(fba.SolverOptions{Timeout: cfg.SolverTimeout})
	}
	if p.filler == nil {
		p.filler = gapfill.NewLPFiller(p.solver, cfg.GapFill)
	}
	return p
}

// Config returns the normalised configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Outcome describes a finished run.
type Outcome struct {
	RunID    string
	Organism string
	Label    string
	States   []State

	// Model is the species model at the end of the run: gap-filled after a successful
	// repair, untouched otherwise.
	Model     *metnet.Model
	Objective string
	Nutrients nutrients.Report
	Initial   *fba.Solution
	Dead      []metnet.Reaction

	GapFill  gapfill.Result
	Applied  *gapfill.Solution
	Added    []string
	Refined  *fba.Solution
	Restored bool

	Files []string
	Err   error

	StartedAt  time.Time
	FinishedAt time.Time
}

// State is the last state reached.
func (o *Outcome) State() State {
	if len(o.States) == 0 {
		return ""
	}
	return o.States[len(o.States)-1]
}

func (o *Outcome) enter(s State) {
	if !canTransition(o.State(), s) {
		// Programmer error: the stage order below is fixed.
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", o.State(), s))
	}
	o.States = append(o.States, s)
	log.Debug().Str("run", o.RunID).Str("organism", o.Organism).Str("state", string(s)).Msg("pipeline state")
}

// Run analyses the configured organism. community doubles as the universal reaction
// database and is only read. Expected terminal failures come back both as the returned
// error and as Outcome.Err: fba.ErrNoObjectiveFound, gapfill.ErrGapFillExhausted (or
// ErrRepairBlocked) and fba.ErrSolverTimeout (gap-fill inconclusive).
func (p *Pipeline) Run(ctx context.Context, community *metnet.Model) (*Outcome, error) {
	return p.run(ctx, community, p.cfg.Organism, p.cfg.Label)
}

func (p *Pipeline) run(ctx context.Context, community *metnet.Model, organism, label string) (*Outcome, error) {
	if community == nil {
		return nil, ErrEmptyCommunity
	}
	out := &Outcome{
		RunID:     uuid.NewString(),
		Organism:  organism,
		Label:     label,
		StartedAt: time.Now(),
	}
	// Tables are buffered per run so concurrent runs do not interleave.
	var tables bytes.Buffer
	defer p.flush(&tables)

	err := p.stages(ctx, community, out, &tables)
	out.Err = err
	out.FinishedAt = time.Now()
	p.record(ctx, out)

	if err != nil {
		log.Error().Err(err).Str("organism", organism).Str("state", string(out.State())).Msg("Pipeline run stopped")
	} else {
		log.Info().Str("organism", organism).Strs("files", out.Files).Msg("Pipeline run finished")
	}
	return out, err
}

func (p *Pipeline) stages(ctx context.Context, community *metnet.Model, out *Outcome, tables io.Writer) error {
	cfg := p.cfg
	eps := cfg.ZeroTolerance

	sub, err := metnet.Extract(community, out.Organism, metnet.ExtractOptions{Strict: cfg.StrictTags})
	if err != nil {
		return err
	}
	out.Model = sub
	out.enter(StateExtracted)
	if sub.NumReactions() == 0 {
		log.Warn().Str("organism", out.Organism).Msg("No reactions attributed to organism, sub-model is empty")
	} else {
		log.Info().Str("organism", out.Organism).Int("reactions", sub.NumReactions()).
			Int("metabolites", sub.NumMetabolites()).Msg("Species sub-model extracted")
	}

	out.Nutrients = nutrients.Check(sub, cfg.Essential)
	out.Nutrients.Log()
	if err := out.Nutrients.WriteTable(tables); err != nil {
		return err
	}
	out.enter(StateValidated)

	objective, sol, err := fba.SetObjective(ctx, p.solver, sub)
	if errors.Is(err, fba.ErrNoObjectiveFound) {
		out.enter(StateNoObjective)
		fmt.Fprintln(tables, "No biomass reaction found.")
		return err
	}
	if err != nil {
		return err
	}
	out.Objective = objective
	out.enter(StateObjectiveSet)
	fmt.Fprintf(tables, "Biomass reaction '%s' set as the objective function.\n", objective)
	if sol.Feasible() {
		fmt.Fprintf(tables, "Biomass flux (objective value): %g\n", sol.ObjectiveValue)
	} else {
		fmt.Fprintln(tables, "Biomass flux (objective value): infeasible")
	}

	out.Initial = sol
	out.enter(StateSolved)

	out.Dead = fba.DeadReactions(sub, sol, eps)
	writeDead(tables, out.Dead)
	log.Info().Str("organism", out.Organism).Int("dead", len(out.Dead)).Int("reactions", sub.NumReactions()).
		Msg("Infeasible reactions identified")
	out.enter(StateInfeasibleChecked)

	if !p.shouldGapFill(sol) {
		log.Info().Str("organism", out.Organism).Float64("objective_value", sol.ObjectiveValue).
			Msg("Objective carries flux, gap-filling skipped")
		if err := p.persistInitial(out); err != nil {
			return err
		}
		out.enter(StatePersisted)
		return nil
	}

	res, err := p.filler.Fill(ctx, gapfill.Request{
		Model:     sub,
		Universal: community,
		Objective: objective,
		Demands:   cfg.Demands,
	})
	out.enter(StateGapFillAttempted)
	out.GapFill = res
	if errors.Is(err, gapfill.ErrGapFillExhausted) || errors.Is(err, fba.ErrSolverTimeout) {
		fmt.Fprintln(tables, "Gap-filling failed: model left unresolved.")
		out.enter(StateUnresolved)
		if perr := p.persistUnresolved(out); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	}
	if err != nil {
		return err
	}

	chosen, _ := gapfill.Select(res, cfg.Policy)
	out.Applied = &chosen
	// sub stays as extracted until the merged copy is known to grow.
	repaired := sub.Clone()
	added, err := gapfill.Merge(repaired, chosen)
	if err != nil {
		return err
	}
	out.Added = added
	fmt.Fprintf(tables, "Gap-filling added %d reaction(s): %v\n", len(added), added)

	refined, err := p.solver.Solve(ctx, fba.Problem{Model: repaired, Objective: objective, Sense: fba.Maximize})
	switch {
	case errors.Is(err, fba.ErrInfeasible):
		refined = fba.Infeasible(objective)
	case err != nil:
		return err
	}
	out.Refined = refined
	out.Restored = !refined.ObjectiveIsZero(eps)
	if !out.Restored {
		log.Warn().Str("organism", out.Organism).Strs("added", added).
			Msg("Objective still carries no flux after gap-filling")
		fmt.Fprintln(tables, "Biomass flux after gap-filling: none")
		fmt.Fprintln(tables, "Gap-filling failed: model left unresolved.")
		out.enter(StateUnresolved)
		if perr := p.persistUnresolved(out); perr != nil {
			return errors.Join(ErrRepairBlocked, perr)
		}
		return ErrRepairBlocked
	}
	out.Model = repaired
	fmt.Fprintf(tables, "Biomass flux after gap-filling: %g\n", refined.ObjectiveValue)
	out.enter(StateRefined)

	if err := p.persistRefined(out); err != nil {
		return err
	}
	out.enter(StatePersisted)
	return nil
}

// shouldGapFill applies the configured gate. The objective is known to exist here.
func (p *Pipeline) shouldGapFill(sol *fba.Solution) bool {
	switch p.cfg.Gate {
	case GateZeroFlux:
		return sol.ObjectiveIsZero(p.cfg.ZeroTolerance)
	default:
		return true
	}
}

func writeDead(w io.Writer, dead []metnet.Reaction) {
	fmt.Fprintln(w, "Identifying infeasible reactions:")
	for _, r := range dead {
		fmt.Fprintf(w, "%s: %s\n", r.ID, r.Name)
	}
}

func (p *Pipeline) flush(buf *bytes.Buffer) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	_, _ = buf.WriteTo(p.out)
}

func (p *Pipeline) record(ctx context.Context, out *Outcome) {
	if p.ledger == nil {
		return
	}
	entry := report.LedgerEntry{
		RunID:          out.RunID,
		Organism:       out.Organism,
		State:          string(out.State()),
		Objective:      out.Objective,
		AddedReactions: out.Added,
		StartedAt:      out.StartedAt,
		FinishedAt:     out.FinishedAt,
	}
	if out.Initial.Feasible() {
		v := out.Initial.ObjectiveValue
		entry.InitialObjective = &v
	}
	if out.Refined.Feasible() {
		v := out.Refined.ObjectiveValue
		entry.RefinedObjective = &v
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	if err := p.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("run", out.RunID).Msg("Failed to record run in ledger")
	}
}
