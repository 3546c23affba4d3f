package fba

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"metabuddy/metnet"
)

// Sense of the optimisation.
type Sense int

const (
	Maximize Sense = iota
	Minimize
)

// Problem is one LP over a model. Exactly one of Objective or Weights is set: Objective
// names the single reaction to optimise, Weights is a linear objective over several
// reactions (used by gap-filling). The model is only read.
type Problem struct {
	Model     *metnet.Model
	Objective string
	Weights   map[string]float64
	Sense     Sense
}

// Solver computes an optimal flux distribution. Implementations return an error wrapping
// ErrInfeasible when no flux satisfies the bounds and mass balance, and ErrSolverTimeout
// when the search was cut short.
type Solver interface {
	Solve(ctx context.Context, p Problem) (*Solution, error)
}

// SolverOptions configures SimplexSolver.
//   - Timeout: upper bound on one solve (default 2m, negative disables).
//   - PivotTolerance: simplex tolerance handed to gonum (default 1e-10).
//   - RankTolerance: pivots below this are treated as zero when dropping dependent
//     mass-balance rows (default 1e-9).
type SolverOptions struct {
	Timeout        time.Duration
	PivotTolerance float64
	RankTolerance  float64
}

// DefaultSolverOptions returns the defaults documented on SolverOptions.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Timeout:        2 * time.Minute,
		PivotTolerance: 1e-10,
		RankTolerance:  1e-9,
	}
}

func (o *SolverOptions) normalize() {
	d := DefaultSolverOptions()
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.PivotTolerance <= 0 {
		o.PivotTolerance = d.PivotTolerance
	}
	if o.RankTolerance <= 0 {
		o.RankTolerance = d.RankTolerance
	}
}

// SimplexSolver solves flux balance problems with gonum's simplex implementation.
type SimplexSolver struct {
	opts SolverOptions
}

// NewSimplexSolver returns a solver with opts, zero fields taking their defaults.
func NewSimplexSolver(opts SolverOptions) *SimplexSolver {
	opts.normalize()
	return &SimplexSolver{opts: opts}
}

type simplexResult struct {
	x   []float64
	err error
}

// Solve builds max/min c·v subject to S·v = 0 and lb <= v <= ub and hands it to lp.Simplex.
func (s *SimplexSolver) Solve(ctx context.Context, p Problem) (*Solution, error) {
	if p.Model == nil {
		return nil, ErrNilModel
	}
	m := p.Model
	n := m.NumReactions()
	c, err := objectiveVector(p)
	if err != nil {
		return nil, err
	}

	rxns := m.Reactions()
	stoich := m.StoichiometricMatrix()
	// A reaction with no mass balance and no finite bound would leave an all-zero column,
	// which lp.Simplex rejects. Without an objective weight its optimal flux is 0.
	free := freeColumns(rxns, stoich)
	for j := range free {
		if c[j] != 0 {
			return nil, fmt.Errorf("%w: %s has neither bounds nor mass balance", ErrUnbounded, rxns[j].ID)
		}
	}
	g, h := boundRows(rxns, free)
	a := independentRows(stoich, s.opts.RankTolerance)

	log.Debug().
		Str("model", m.ID).
		Int("reactions", n).
		Int("metabolites", m.NumMetabolites()).
		Int("balance_rows", rowsOf(a)).
		Int("bound_rows", len(h)).
		Msg("solving flux balance problem")

	if g == nil && a == nil {
		// No constraints at all: only the zero objective is bounded.
		for _, ci := range c {
			if ci != 0 {
				return nil, ErrUnbounded
			}
		}
		return newSolution(p, rxns, make([]float64, n), c), nil
	}

	var b []float64
	var aMat mat.Matrix
	if a != nil {
		b = make([]float64, rowsOf(a))
		aMat = a
	}
	var gMat mat.Matrix
	if g != nil {
		gMat = g
	}
	cNew, aNew, bNew := lp.Convert(c, gMat, h, aMat, b)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	// lp.Simplex cannot be interrupted; on timeout the goroutine finishes on its own and
	// its result is dropped.
	done := make(chan simplexResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- simplexResult{err: fmt.Errorf("fba: simplex panic: %v", r)}
			}
		}()
		_, x, err := lp.Simplex(cNew, aNew, bNew, s.opts.PivotTolerance, nil)
		done <- simplexResult{x: x, err: err}
	}()

	var res simplexResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSolverTimeout, ctx.Err())
	case res = <-done:
	}

	switch {
	case errors.Is(res.err, lp.ErrInfeasible):
		return nil, fmt.Errorf("%w: %s", ErrInfeasible, m.ID)
	case errors.Is(res.err, lp.ErrUnbounded):
		return nil, fmt.Errorf("%w: %s", ErrUnbounded, m.ID)
	case res.err != nil:
		return nil, fmt.Errorf("fba: simplex on %s: %w", m.ID, res.err)
	}

	// Standard form columns are [v+; v-; slack].
	v := make([]float64, n)
	for j := 0; j < n; j++ {
		v[j] = round(res.x[j] - res.x[n+j])
	}
	return newSolution(p, rxns, v, c), nil
}

func newSolution(p Problem, rxns []metnet.Reaction, v, c []float64) *Solution {
	sol := &Solution{
		Objective: p.Objective,
		Fluxes:    make(map[string]float64, len(rxns)),
		Status:    StatusOptimal,
	}
	var obj float64
	for j, r := range rxns {
		sol.Fluxes[r.ID] = v[j]
		obj += c[j] * v[j]
	}
	// c was negated for maximisation.
	if p.Sense == Maximize {
		obj = -obj
	}
	sol.ObjectiveValue = round(obj)
	return sol
}

// objectiveVector builds the minimisation cost vector in reaction order.
func objectiveVector(p Problem) ([]float64, error) {
	m := p.Model
	c := make([]float64, m.NumReactions())
	sign := 1.0
	if p.Sense == Maximize {
		sign = -1
	}
	switch {
	case p.Objective != "" && p.Weights != nil:
		return nil, errors.New("fba: both Objective and Weights set")
	case p.Objective != "":
		j, ok := m.ReactionIndex(p.Objective)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownObjective, p.Objective)
		}
		c[j] = sign
	case len(p.Weights) > 0:
		for id, w := range p.Weights {
			j, ok := m.ReactionIndex(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownObjective, id)
			}
			c[j] = sign * w
		}
	default:
		return nil, ErrUnknownObjective
	}
	return c, nil
}

// freeColumns returns the reactions with both bounds infinite and an all-zero column in s.
func freeColumns(rxns []metnet.Reaction, s *mat.Dense) map[int]bool {
	free := make(map[int]bool)
	for j, r := range rxns {
		if !math.IsInf(r.LowerBound, -1) || !math.IsInf(r.UpperBound, 1) {
			continue
		}
		empty := true
		if s != nil {
			rows, _ := s.Dims()
			for i := 0; i < rows && empty; i++ {
				empty = s.At(i, j) == 0
			}
		}
		if empty {
			free[j] = true
		}
	}
	return free
}

// boundRows encodes finite bounds as G·v <= h: one row v_j <= ub and one row -v_j <= -lb.
// Columns in pinned are held at zero.
func boundRows(rxns []metnet.Reaction, pinned map[int]bool) (*mat.Dense, []float64) {
	type row struct {
		col  int
		sign float64
		h    float64
	}
	var rows []row
	for j, r := range rxns {
		if pinned[j] {
			rows = append(rows, row{col: j, sign: 1}, row{col: j, sign: -1})
			continue
		}
		if !math.IsInf(r.UpperBound, 1) {
			rows = append(rows, row{col: j, sign: 1, h: r.UpperBound})
		}
		if !math.IsInf(r.LowerBound, -1) {
			rows = append(rows, row{col: j, sign: -1, h: -r.LowerBound})
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	g := mat.NewDense(len(rows), len(rxns), nil)
	h := make([]float64, len(rows))
	for i, rw := range rows {
		g.Set(i, rw.col, rw.sign)
		h[i] = rw.h
	}
	return g, h
}

// independentRows reduces s to a row echelon form with partial pivoting and returns its
// non-zero rows. They span the same row space, so S·v = 0 is unchanged, while empty and
// linearly dependent metabolite rows (conserved moieties) are gone. lp.Simplex rejects both.
func independentRows(s *mat.Dense, tol float64) *mat.Dense {
	if s == nil {
		return nil
	}
	r, c := s.Dims()
	w := mat.DenseCopyOf(s)
	rank := 0
	for col := 0; col < c && rank < r; col++ {
		pivot, best := -1, tol
		for i := rank; i < r; i++ {
			if v := math.Abs(w.At(i, col)); v > best {
				pivot, best = i, v
			}
		}
		if pivot < 0 {
			continue
		}
		if pivot != rank {
			swapRows(w, pivot, rank)
		}
		pv := w.At(rank, col)
		for i := rank + 1; i < r; i++ {
			f := w.At(i, col) / pv
			if f == 0 {
				continue
			}
			for k := col; k < c; k++ {
				w.Set(i, k, w.At(i, k)-f*w.At(rank, k))
			}
			w.Set(i, col, 0)
		}
		rank++
	}
	if rank == 0 {
		return nil
	}
	return mat.DenseCopyOf(w.Slice(0, rank, 0, c))
}

func swapRows(m *mat.Dense, i, j int) {
	ri := mat.Row(nil, i, m)
	rj := mat.Row(nil, j, m)
	m.SetRow(i, rj)
	m.SetRow(j, ri)
}

func rowsOf(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}
