// Package fba runs flux balance analysis on metnet models: it wraps the LP solver,
// selects the biomass objective and classifies reactions that carry no flux.
package fba

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"metabuddy/metnet"
)

// ZeroTolerance is the default flux magnitude below which a reaction counts as carrying
// no flux. Solver backends differ in numerical noise, so callers take it from configuration.
const ZeroTolerance = 1e-6

var (
	ErrInfeasible       = errors.New("fba: problem is infeasible")
	ErrUnbounded        = errors.New("fba: problem is unbounded")
	ErrSolverTimeout    = errors.New("fba: solver timed out, result inconclusive")
	ErrNoObjectiveFound = errors.New("fba: no biomass reaction found")
	ErrUnknownObjective = errors.New("fba: objective is not a reaction of the model")
	ErrNilModel         = errors.New("fba: nil model")
)

// Status of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	}
	return "unknown"
}

// Solution is the result of one solve. It is never modified after it is returned;
// a re-solve produces a new Solution.
type Solution struct {
	Objective      string
	ObjectiveValue float64
	Fluxes         map[string]float64
	Status         Status
}

// Infeasible returns the solution recorded for a solve that proved infeasible.
func Infeasible(objective string) *Solution {
	return &Solution{Objective: objective, Status: StatusInfeasible, Fluxes: map[string]float64{}}
}

// Feasible reports whether the solve found a flux assignment.
func (s *Solution) Feasible() bool {
	return s != nil && s.Status == StatusOptimal
}

// Flux returns the flux through a reaction. ok is false when the solve was infeasible or
// the reaction was not part of the problem.
func (s *Solution) Flux(id string) (v float64, ok bool) {
	if !s.Feasible() {
		return 0, false
	}
	v, ok = s.Fluxes[id]
	return v, ok
}

// IsZero is the single zero-flux test: |v| < eps. A flux exactly at eps is not zero.
func IsZero(v, eps float64) bool {
	return math.Abs(v) < eps
}

// ObjectiveIsZero reports whether the solve leaves the objective without flux, counting an
// infeasible solve as zero.
func (s *Solution) ObjectiveIsZero(eps float64) bool {
	if !s.Feasible() {
		return true
	}
	return IsZero(s.ObjectiveValue, eps)
}

// DeadReactions returns the reactions of m, in model order, whose flux magnitude is below
// eps. It only reads sol. Every reaction is dead under an infeasible solution.
func DeadReactions(m *metnet.Model, sol *Solution, eps float64) []metnet.Reaction {
	var dead []metnet.Reaction
	for _, r := range m.Reactions() {
		v, ok := sol.Flux(r.ID)
		if !ok || IsZero(v, eps) {
			dead = append(dead, r)
		}
	}
	return dead
}

// Summary describes the active part of a flux distribution.
type Summary struct {
	Active     int
	Dead       int
	MeanAbs    float64
	StdDevAbs  float64
	MaxAbs     float64
	MaxAbsRxn  string
	Objective  float64
	Infeasible bool
}

// Summarize computes statistics over the reactions of m carrying flux in sol.
func Summarize(m *metnet.Model, sol *Solution, eps float64) Summary {
	sum := Summary{Infeasible: !sol.Feasible()}
	if sum.Infeasible {
		sum.Dead = m.NumReactions()
		return sum
	}
	sum.Objective = sol.ObjectiveValue
	var active []float64
	for _, r := range m.Reactions() {
		v := math.Abs(sol.Fluxes[r.ID])
		if IsZero(v, eps) {
			sum.Dead++
			continue
		}
		active = append(active, v)
		if v > sum.MaxAbs {
			sum.MaxAbs, sum.MaxAbsRxn = v, r.ID
		}
	}
	sum.Active = len(active)
	if len(active) > 0 {
		sum.MeanAbs, sum.StdDevAbs = stat.MeanStdDev(active, nil)
		if len(active) == 1 {
			sum.StdDevAbs = 0
		}
	}
	return sum
}

// round snaps solver noise well below any sensible tolerance to exact zero.
func round(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, 1e-12) {
		return 0
	}
	return v
}
