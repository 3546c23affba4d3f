package fba_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabuddy/fba"
	"metabuddy/metnet"
)

// stubSolver returns a canned answer and counts calls.
type stubSolver struct {
	sol   *fba.Solution
	err   error
	calls int
}

func (s *stubSolver) Solve(_ context.Context, p fba.Problem) (*fba.Solution, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sol, nil
}

func TestSelectObjectiveByKeyword(t *testing.T) {
	m := metnet.NewModel("m")
	require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: "x"}))
	for _, r := range []metnet.Reaction{
		{ID: "R1", Stoichiometry: map[string]float64{"x": 1}, UpperBound: 1},
		{ID: "R2", Name: "Core BioMass", Stoichiometry: map[string]float64{"x": -1}, UpperBound: 1},
		{ID: "BIOMASS_alt", Stoichiometry: map[string]float64{"x": -1}, UpperBound: 1},
	} {
		require.NoError(t, m.AddReaction(r))
	}

	id, ok := fba.SelectObjective(m)
	require.True(t, ok)
	assert.Equal(t, "R2", id)

	// Same input, same answer.
	for i := 0; i < 5; i++ {
		again, _ := fba.SelectObjective(m)
		assert.Equal(t, id, again)
	}
}

func TestSelectObjectivePrefersCandidateFlag(t *testing.T) {
	m := metnet.NewModel("m")
	require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: "x"}))
	require.NoError(t, m.AddReaction(metnet.Reaction{ID: "BIOMASS", Stoichiometry: map[string]float64{"x": -1}, UpperBound: 1}))
	require.NoError(t, m.AddReaction(metnet.Reaction{ID: "GROWTH", Stoichiometry: map[string]float64{"x": -1}, UpperBound: 1,
		ObjectiveCandidate: true}))

	id, ok := fba.SelectObjective(m)
	require.True(t, ok)
	assert.Equal(t, "GROWTH", id)
}

func TestSetObjectiveWithoutBiomass(t *testing.T) {
	m := metnet.NewModel("m")
	require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: "x"}))
	require.NoError(t, m.AddReaction(metnet.Reaction{ID: "EX_x", Stoichiometry: map[string]float64{"x": -1}, UpperBound: 1}))

	solver := &stubSolver{}
	id, sol, err := fba.SetObjective(context.Background(), solver, m)
	assert.ErrorIs(t, err, fba.ErrNoObjectiveFound)
	assert.Empty(t, id)
	assert.Nil(t, sol)
	assert.Zero(t, solver.calls, "nothing to solve without an objective")
}

func TestSetObjectiveInfeasibleIsNotAnError(t *testing.T) {
	m := toyModel(t)
	solver := &stubSolver{err: fba.ErrInfeasible}
	id, sol, err := fba.SetObjective(context.Background(), solver, m)
	require.NoError(t, err)
	assert.Equal(t, "BIOMASS_toy", id)
	assert.False(t, sol.Feasible())
	assert.Equal(t, "BIOMASS_toy", sol.Objective)
}

func TestSetObjectiveSolves(t *testing.T) {
	m := toyModel(t)
	id, sol, err := fba.SetObjective(context.Background(), fba.NewSimplexSolver(fba.SolverOptions{}), m)
	require.NoError(t, err)
	assert.Equal(t, "BIOMASS_toy", id)
	assert.InDelta(t, 10.0, sol.ObjectiveValue, 1e-6)
}

func TestSetObjectivePassesTimeoutThrough(t *testing.T) {
	solver := &stubSolver{err: fba.ErrSolverTimeout}
	_, sol, err := fba.SetObjective(context.Background(), solver, toyModel(t))
	assert.ErrorIs(t, err, fba.ErrSolverTimeout)
	assert.Nil(t, sol)
}
