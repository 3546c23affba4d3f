// Package gapfill searches a universal reaction database for reactions that let an
// incomplete species model carry flux through its objective again.
//
// The search is the usual relaxation of the minimum-cardinality MILP: every candidate is
// split into irreversible halves (candidates with a forced direction stay whole), the
// weighted sum of candidate flux is minimised while the objective is held at or above
// MinObjective, and the support of that LP is then pruned
// one reaction at a time until no reaction can be removed. The result is
// inclusion-minimal; alternative solutions come from re-running with the reactions of
// earlier solutions penalised. Every solution is checked once more against the species
// model with the reactions' own bounds before it is returned.
package gapfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"metabuddy/fba"
	"metabuddy/metnet"
)

var (
	ErrGapFillExhausted = errors.New("gapfill: no reaction set restores the objective")
	ErrNoObjective      = errors.New("gapfill: objective is not a reaction of the model")
	ErrNilModel         = errors.New("gapfill: nil model")
)

const (
	demandPrefix  = "DM_"
	forwardSuffix = "__gf_fwd"
	reverseSuffix = "__gf_rev"

	// penalty multiplier applied to reactions of earlier solutions
	reusePenalty = 10.0
)

// Request is one gap-fill search. Model and Universal are only read.
type Request struct {
	Model     *metnet.Model
	Universal *metnet.Model
	Objective string
	// Demands are the probe reactions of Model whose metabolites get demand reactions as
	// candidates. Nil means the exchange reactions of Model.
	Demands []string
}

// Solution is one set of reactions to add, with the metabolites they need.
type Solution struct {
	Reactions   []metnet.Reaction
	Metabolites []metnet.Metabolite
	// TotalFlux is the summed flux magnitude through the added reactions in the minimising LP.
	TotalFlux float64
}

// IDs returns the reaction ids of the solution.
func (s Solution) IDs() []string {
	ids := make([]string, len(s.Reactions))
	for i, r := range s.Reactions {
		ids[i] = r.ID
	}
	return ids
}

// Result lists alternative solutions in the order they were found.
type Result struct {
	Solutions []Solution
}

// Filler searches for gap-fill solutions. It returns ErrGapFillExhausted, and an empty
// Result, when no solution exists.
type Filler interface {
	Fill(ctx context.Context, req Request) (Result, error)
}

// Options configures LPFiller.
//   - MinObjective: flux the objective must reach (default 0.05).
//   - Iterations: number of alternative solutions to look for (default 1).
//   - UniversalPenalty, DemandPenalty: cost per unit flux of each candidate kind (default 1).
//   - Tolerance: flux below this counts as unused (default fba.ZeroTolerance).
type Options struct {
	MinObjective     float64
	Iterations       int
	UniversalPenalty float64
	DemandPenalty    float64
	Tolerance        float64
}

// DefaultOptions returns the defaults documented on Options.
func DefaultOptions() Options {
	return Options{
		MinObjective:     0.05,
		Iterations:       1,
		UniversalPenalty: 1,
		DemandPenalty:    1,
		Tolerance:        fba.ZeroTolerance,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.MinObjective <= 0 {
		o.MinObjective = d.MinObjective
	}
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.UniversalPenalty <= 0 {
		o.UniversalPenalty = d.UniversalPenalty
	}
	if o.DemandPenalty <= 0 {
		o.DemandPenalty = d.DemandPenalty
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
}

// LPFiller implements Filler on top of an fba.Solver.
type LPFiller struct {
	solver fba.Solver
	opts   Options
}

// NewLPFiller returns a filler using solver. Zero option fields take their defaults.
func NewLPFiller(solver fba.Solver, opts Options) *LPFiller {
	opts.normalize()
	return &LPFiller{solver: solver, opts: opts}
}

type candidate struct {
	rxn     metnet.Reaction
	penalty float64
}

// Fill runs the search.
func (f *LPFiller) Fill(ctx context.Context, req Request) (Result, error) {
	if req.Model == nil || req.Universal == nil {
		return Result{}, ErrNilModel
	}
	obj, ok := req.Model.Reaction(req.Objective)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrNoObjective, req.Objective)
	}
	if obj.UpperBound < f.opts.MinObjective {
		return Result{}, fmt.Errorf("%w: objective %s is capped at %g", ErrGapFillExhausted, obj.ID, obj.UpperBound)
	}

	cands, mets := f.candidates(req)
	log.Info().
		Str("model", req.Model.ID).
		Str("objective", req.Objective).
		Int("candidates", len(cands)).
		Float64("min_objective", f.opts.MinObjective).
		Msg("Performing gap-filling")

	penalties := make([]float64, len(cands))
	for i, c := range cands {
		penalties[i] = c.penalty
	}

	// Candidates that force flux can make the full set infeasible on their own; the search
	// then falls back to the others.
	pools := [][]int{make([]int, 0, len(cands))}
	var unforced []int
	for i, c := range cands {
		pools[0] = append(pools[0], i)
		if !forced(c.rxn) {
			unforced = append(unforced, i)
		}
	}
	if len(unforced) < len(cands) {
		pools = append(pools, unforced)
	}

	var res Result
	seen := make(map[string]bool)
	for it := 0; it < f.opts.Iterations; it++ {
		var (
			chosen []int
			total  float64
			err    error
		)
		for _, pool := range pools {
			chosen, total, err = f.search(ctx, req, cands, mets, pool, penalties)
			if !errors.Is(err, fba.ErrInfeasible) {
				break
			}
		}
		if errors.Is(err, fba.ErrInfeasible) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		key := setKey(chosen, cands)
		if seen[key] {
			break
		}
		seen[key] = true

		sol := Solution{TotalFlux: total}
		needed := make(map[string]bool)
		for _, i := range chosen {
			sol.Reactions = append(sol.Reactions, cands[i].rxn.Clone())
			for met := range cands[i].rxn.Stoichiometry {
				needed[met] = true
			}
			penalties[i] *= reusePenalty
		}
		for _, met := range mets {
			if needed[met.ID] && !req.Model.HasMetabolite(met.ID) {
				sol.Metabolites = append(sol.Metabolites, met)
			}
		}
		restored, err := f.restores(ctx, req, sol)
		if err != nil {
			return Result{}, err
		}
		if !restored {
			log.Warn().
				Int("iteration", it+1).
				Strs("reactions", sol.IDs()).
				Msg("Gap-fill candidate set does not restore the objective, discarded")
			continue
		}
		log.Info().
			Int("iteration", it+1).
			Strs("reactions", sol.IDs()).
			Float64("total_flux", total).
			Msg("Gap-fill solution found")
		res.Solutions = append(res.Solutions, sol)
	}

	if len(res.Solutions) == 0 {
		return Result{}, ErrGapFillExhausted
	}
	return res, nil
}

// candidates collects the universal reactions missing from the model, then one demand
// reaction per metabolite of the probe reactions. It also returns, in first-use order, the
// metabolites the candidates reference.
func (f *LPFiller) candidates(req Request) ([]candidate, []metnet.Metabolite) {
	var out []candidate
	taken := make(map[string]bool)
	for _, r := range req.Universal.Reactions() {
		if req.Model.HasReaction(r.ID) || taken[r.ID] {
			continue
		}
		taken[r.ID] = true
		out = append(out, candidate{rxn: r.Clone(), penalty: f.opts.UniversalPenalty})
	}

	probes := req.Demands
	if probes == nil {
		for _, r := range req.Model.Exchanges() {
			probes = append(probes, r.ID)
		}
	}
	for _, id := range probes {
		probe, ok := req.Model.Reaction(id)
		if !ok {
			log.Warn().Str("probe", id).Msg("Demand probe is not a reaction of the model, skipped")
			continue
		}
		for _, met := range sortedKeys(probe.Stoichiometry) {
			dm := demandPrefix + met
			if taken[dm] || req.Model.HasReaction(dm) {
				continue
			}
			taken[dm] = true
			out = append(out, candidate{
				rxn: metnet.Reaction{
					ID:            dm,
					Name:          "Demand " + met,
					Stoichiometry: map[string]float64{met: -1},
					LowerBound:    0,
					UpperBound:    metnet.DefaultBound,
				},
				penalty: f.opts.DemandPenalty,
			})
		}
	}

	var mets []metnet.Metabolite
	seen := make(map[string]bool)
	for _, c := range out {
		for _, id := range sortedKeys(c.rxn.Stoichiometry) {
			if seen[id] {
				continue
			}
			seen[id] = true
			if met, ok := req.Model.Metabolite(id); ok {
				mets = append(mets, met)
			} else if met, ok := req.Universal.Metabolite(id); ok {
				mets = append(mets, met)
			} else {
				mets = append(mets, metnet.Metabolite{ID: id})
			}
		}
	}
	return out, mets
}

// restores merges sol into a copy of the species model and reports whether the objective
// then reaches MinObjective.
func (f *LPFiller) restores(ctx context.Context, req Request, sol Solution) (bool, error) {
	work := req.Model.Clone()
	if _, err := Merge(work, sol); err != nil {
		return false, err
	}
	res, err := f.solver.Solve(ctx, fba.Problem{Model: work, Objective: req.Objective, Sense: fba.Maximize})
	if errors.Is(err, fba.ErrInfeasible) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.ObjectiveValue >= f.opts.MinObjective-f.opts.Tolerance, nil
}

// search finds one inclusion-minimal subset of pool under the given penalties.
func (f *LPFiller) search(ctx context.Context, req Request, cands []candidate, mets []metnet.Metabolite, pool []int, penalties []float64) ([]int, float64, error) {
	flux, err := f.minimise(ctx, req, cands, mets, pool, penalties)
	if err != nil {
		return nil, 0, err
	}

	var active []int
	for i := range cands {
		if !fba.IsZero(flux[i], f.opts.Tolerance) {
			active = append(active, i)
		}
	}
	// Try to drop the least used reactions first.
	sort.SliceStable(active, func(a, b int) bool { return flux[active[a]] < flux[active[b]] })

	kept := active
	for _, drop := range active {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", fba.ErrSolverTimeout, err)
		}
		trial := without(kept, drop)
		feasible, err := f.feasible(ctx, req, cands, mets, trial)
		if err != nil {
			return nil, 0, err
		}
		if feasible {
			kept = trial
		}
	}
	sort.Ints(kept)

	total := 0.0
	if len(kept) > 0 {
		flux, err = f.minimise(ctx, req, cands, mets, kept, penalties)
		if err != nil {
			return nil, 0, err
		}
		for _, i := range kept {
			total += flux[i]
		}
	}
	return kept, total, nil
}

// minimise solves the weighted flux minimisation with only the enabled candidates and
// returns the flux magnitude of every candidate (zero for disabled ones).
func (f *LPFiller) minimise(ctx context.Context, req Request, cands []candidate, mets []metnet.Metabolite, enabled []int, penalties []float64) ([]float64, error) {
	work, cols, err := f.combined(req, cands, mets, enabled)
	if err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(cols))
	for id, col := range cols {
		weights[id] = col.sign * penalties[col.cand]
	}
	flux := make([]float64, len(cands))
	if len(weights) == 0 {
		// Nothing to minimise: only feasibility matters.
		if _, err := f.solver.Solve(ctx, fba.Problem{Model: work, Objective: req.Objective, Sense: fba.Maximize}); err != nil {
			return nil, err
		}
		return flux, nil
	}
	sol, err := f.solver.Solve(ctx, fba.Problem{Model: work, Weights: weights, Sense: fba.Minimize})
	if err != nil {
		return nil, err
	}
	for id, col := range cols {
		flux[col.cand] += math.Abs(sol.Fluxes[id])
	}
	return flux, nil
}

// feasible reports whether the objective can reach MinObjective with only the enabled candidates.
func (f *LPFiller) feasible(ctx context.Context, req Request, cands []candidate, mets []metnet.Metabolite, enabled []int) (bool, error) {
	work, _, err := f.combined(req, cands, mets, enabled)
	if err != nil {
		return false, err
	}
	_, err = f.solver.Solve(ctx, fba.Problem{Model: work, Objective: req.Objective, Sense: fba.Maximize})
	if errors.Is(err, fba.ErrInfeasible) {
		return false, nil
	}
	return err == nil, err
}

// column is one LP reaction standing for a candidate. sign orients its weight so that the
// minimised term is the flux magnitude.
type column struct {
	cand int
	sign float64
}

// forced reports whether r must carry flux in a fixed direction.
func forced(r metnet.Reaction) bool {
	return r.LowerBound > 0 || r.UpperBound < 0
}

// combined clones the species model, holds the objective at MinObjective and adds the
// enabled candidates: irreversible halves when the candidate may rest at zero, the reaction
// itself with its own bounds when it is forced. cols maps each added id to its candidate.
func (f *LPFiller) combined(req Request, cands []candidate, mets []metnet.Metabolite, enabled []int) (*metnet.Model, map[string]column, error) {
	work := req.Model.Clone()
	obj, _ := work.Reaction(req.Objective)
	if err := work.SetBounds(req.Objective, math.Max(obj.LowerBound, f.opts.MinObjective), obj.UpperBound); err != nil {
		return nil, nil, err
	}
	for _, met := range mets {
		if !work.HasMetabolite(met.ID) {
			if err := work.AddMetabolite(met); err != nil {
				return nil, nil, err
			}
		}
	}

	cols := make(map[string]column)
	for _, i := range enabled {
		r := cands[i].rxn
		if forced(r) {
			if err := work.AddReaction(r); err != nil {
				return nil, nil, err
			}
			sign := 1.0
			if r.UpperBound < 0 {
				sign = -1
			}
			cols[r.ID] = column{cand: i, sign: sign}
			continue
		}
		if r.UpperBound > 0 {
			fwd := r.Clone()
			fwd.ID = r.ID + forwardSuffix
			fwd.LowerBound = 0
			if err := work.AddReaction(fwd); err != nil {
				return nil, nil, err
			}
			cols[fwd.ID] = column{cand: i, sign: 1}
		}
		if r.LowerBound < 0 {
			rev := r.Clone()
			rev.ID = r.ID + reverseSuffix
			for met, coef := range rev.Stoichiometry {
				rev.Stoichiometry[met] = -coef
			}
			rev.LowerBound, rev.UpperBound = 0, -r.LowerBound
			if err := work.AddReaction(rev); err != nil {
				return nil, nil, err
			}
			cols[rev.ID] = column{cand: i, sign: 1}
		}
	}
	return work, cols, nil
}

func without(set []int, x int) []int {
	out := make([]int, 0, len(set))
	for _, v := range set {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

func setKey(idx []int, cands []candidate) string {
	ids := make([]string, len(idx))
	for i, j := range idx {
		ids[i] = cands[j].rxn.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
