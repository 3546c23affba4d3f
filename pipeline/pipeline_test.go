package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"metabuddy/fba"
	"metabuddy/gapfill"
	"metabuddy/metnet"
	"metabuddy/pipeline"
	"metabuddy/report"
)

// communityModel holds three species:
//   - toy: biomass blocked because its only exchange is closed; "other" can repair it
//   - grow: a healthy species whose biomass carries flux
//   - nobio: no biomass reaction at all
func communityModel(t *testing.T) *metnet.Model {
	t.Helper()
	m := metnet.NewModel("community")
	for _, id := range []string{"a_e", "b_c", "z_c", "g_e", "g_c", "n_e"} {
		require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: id}))
	}
	for _, r := range []metnet.Reaction{
		{ID: "EX_a_e", Stoichiometry: map[string]float64{"a_e": -1}, LowerBound: 0, UpperBound: 0, Organism: "toy"},
		{ID: "R_a_to_b", Stoichiometry: map[string]float64{"a_e": -1, "b_c": 1}, UpperBound: 1000, Organism: "toy"},
		{ID: "BIOMASS_toy", Name: "Biomass", Stoichiometry: map[string]float64{"b_c": -1}, UpperBound: 1000, Organism: "toy"},

		{ID: "OTHER_src", Stoichiometry: map[string]float64{"z_c": -1, "b_c": 1}, UpperBound: 1000, Organism: "other"},
		{ID: "OTHER_ex", Stoichiometry: map[string]float64{"z_c": -1}, LowerBound: -1000, UpperBound: 1000, Organism: "other"},

		{ID: "EX_g_e", Stoichiometry: map[string]float64{"g_e": -1}, LowerBound: -5, UpperBound: 1000, Organism: "grow"},
		{ID: "GT", Stoichiometry: map[string]float64{"g_e": -1, "g_c": 1}, UpperBound: 1000, Organism: "grow"},
		{ID: "BIOMASS_grow", Stoichiometry: map[string]float64{"g_c": -1}, UpperBound: 1000, Organism: "grow"},

		{ID: "EX_n_e", Stoichiometry: map[string]float64{"n_e": -1}, LowerBound: -1, UpperBound: 1000, Organism: "nobio"},
	} {
		require.NoError(t, m.AddReaction(r))
	}
	return m
}

// fixedFiller always offers the same solution.
type fixedFiller struct{ sol gapfill.Solution }

func (f fixedFiller) Fill(context.Context, gapfill.Request) (gapfill.Result, error) {
	return gapfill.Result{Solutions: []gapfill.Solution{f.sol}}, nil
}

// failingFiller always returns err.
type failingFiller struct{ err error }

func (f failingFiller) Fill(context.Context, gapfill.Request) (gapfill.Result, error) {
	return gapfill.Result{}, f.err
}

func newPipeline(t *testing.T, cfg pipeline.Config, opts ...pipeline.Option) (*pipeline.Pipeline, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg.OutputDir = dir
	var out bytes.Buffer
	opts = append(opts, pipeline.WithOutput(&out))
	return pipeline.New(cfg, opts...), dir, &out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunGapFillsBlockedSpecies(t *testing.T) {
	p, dir, out := newPipeline(t, pipeline.Config{Organism: "toy"})

	res, err := p.Run(context.Background(), communityModel(t))
	require.NoError(t, err)
	assert.Equal(t, []pipeline.State{
		pipeline.StateExtracted,
		pipeline.StateValidated,
		pipeline.StateObjectiveSet,
		pipeline.StateSolved,
		pipeline.StateInfeasibleChecked,
		pipeline.StateGapFillAttempted,
		pipeline.StateRefined,
		pipeline.StatePersisted,
	}, res.States)

	assert.Equal(t, "BIOMASS_toy", res.Objective)
	assert.True(t, res.Initial.ObjectiveIsZero(fba.ZeroTolerance))
	assert.Len(t, res.Dead, 3, "every reaction is dead with the uptake closed")
	assert.ElementsMatch(t, []string{"OTHER_src", "OTHER_ex"}, res.Added)
	assert.True(t, res.Restored)
	assert.Greater(t, res.Refined.ObjectiveValue, 0.0)

	assert.Equal(t, []string{
		"toy.csv",
		"toy_gap_filled_flux_distribution.csv",
		"toy_gap_filled_model.json",
	}, listDir(t, dir))

	saved, err := metnet.Load(filepath.Join(dir, "toy_gap_filled_model.json"))
	require.NoError(t, err)
	assert.Equal(t, 5, saved.NumReactions())
	assert.Equal(t, "BIOMASS_toy", saved.Objective)

	assert.Contains(t, out.String(), "EX_glc__D_e not found in the model.")
	assert.Contains(t, out.String(), "Biomass reaction 'BIOMASS_toy' set as the objective function.")
	assert.Contains(t, out.String(), "Identifying infeasible reactions:")
}

func TestRunDoesNotModifyCommunity(t *testing.T) {
	p, _, _ := newPipeline(t, pipeline.Config{Organism: "toy"})
	community := communityModel(t)
	before := community.Reactions()

	_, err := p.Run(context.Background(), community)
	require.NoError(t, err)
	assert.Equal(t, before, community.Reactions())
}

func TestRunWithoutObjective(t *testing.T) {
	p, dir, out := newPipeline(t, pipeline.Config{Organism: "nobio"})

	res, err := p.Run(context.Background(), communityModel(t))
	assert.ErrorIs(t, err, fba.ErrNoObjectiveFound)
	assert.True(t, pipeline.Expected(err))
	assert.Equal(t, pipeline.StateNoObjective, res.State())
	assert.True(t, res.State().Terminal())
	assert.Nil(t, res.Initial)
	assert.Empty(t, listDir(t, dir), "nothing is persisted without an objective")
	assert.Contains(t, out.String(), "No biomass reaction found.")
}

func TestRunUnresolved(t *testing.T) {
	for _, cause := range []error{gapfill.ErrGapFillExhausted, fba.ErrSolverTimeout} {
		t.Run(cause.Error(), func(t *testing.T) {
			p, dir, _ := newPipeline(t, pipeline.Config{Organism: "toy"},
				pipeline.WithFiller(failingFiller{err: cause}))

			res, err := p.Run(context.Background(), communityModel(t))
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, pipeline.StateUnresolved, res.State())
			assert.Empty(t, res.Added)

			assert.Equal(t, []string{"toy.csv", "toy_unresolved_model.json"}, listDir(t, dir))
			kept, err := metnet.Load(filepath.Join(dir, "toy_unresolved_model.json"))
			require.NoError(t, err)
			assert.Equal(t, 3, kept.NumReactions())

			data, err := os.ReadFile(filepath.Join(dir, "toy.csv"))
			require.NoError(t, err)
			assert.Contains(t, string(data), "BIOMASS_toy,Biomass,0")
		})
	}
}

func TestRunRepairStillBlocked(t *testing.T) {
	for name, rxn := range map[string]metnet.Reaction{
		// Carries no flux towards b_c: biomass stays at zero.
		"zero": {ID: "SINK_z", Stoichiometry: map[string]float64{"z_c": -1}, LowerBound: -1000, UpperBound: 1000},
		// Must push b_c out faster than biomass can take it: the merged model is infeasible.
		"infeasible": {ID: "LINK", Stoichiometry: map[string]float64{"b_c": -1, "z_c": 1}, LowerBound: -1000, UpperBound: -5},
	} {
		t.Run(name, func(t *testing.T) {
			p, dir, out := newPipeline(t, pipeline.Config{Organism: "toy"},
				pipeline.WithFiller(fixedFiller{sol: gapfill.Solution{Reactions: []metnet.Reaction{rxn}}}))

			res, err := p.Run(context.Background(), communityModel(t))
			assert.ErrorIs(t, err, pipeline.ErrRepairBlocked)
			assert.ErrorIs(t, err, gapfill.ErrGapFillExhausted)
			assert.True(t, pipeline.Expected(err))
			assert.Equal(t, pipeline.StateUnresolved, res.State())
			assert.NotContains(t, res.States, pipeline.StateRefined)
			assert.False(t, res.Restored)
			assert.Equal(t, []string{rxn.ID}, res.Added)

			// The outcome keeps the model as extracted.
			assert.Equal(t, 3, res.Model.NumReactions())
			assert.False(t, res.Model.HasReaction(rxn.ID))

			assert.Equal(t, []string{"toy.csv", "toy_unresolved_model.json"}, listDir(t, dir))
			kept, err := metnet.Load(filepath.Join(dir, "toy_unresolved_model.json"))
			require.NoError(t, err)
			assert.False(t, kept.HasReaction(rxn.ID))
			assert.Contains(t, out.String(), "Gap-filling failed: model left unresolved.")
		})
	}
}

// TestRunClosedMedium runs a species whose exchanges are all closed at (0, 0).
func TestRunClosedMedium(t *testing.T) {
	community := metnet.NewModel("community")
	for _, id := range []string{"a_e", "b_c", "c_c"} {
		require.NoError(t, community.AddMetabolite(metnet.Metabolite{ID: id}))
	}
	for _, r := range []metnet.Reaction{
		{ID: "EX_a_e", Stoichiometry: map[string]float64{"a_e": -1}, Organism: "closed"},
		{ID: "R_ab", Stoichiometry: map[string]float64{"a_e": -1, "b_c": 1}, UpperBound: 1000, Organism: "closed"},
		{ID: "BIOMASS_closed", Stoichiometry: map[string]float64{"b_c": -1, "c_c": 1}, UpperBound: 1000, Organism: "closed"},
		{ID: "EX_c_c", Stoichiometry: map[string]float64{"c_c": -1}, Organism: "closed"},
		{ID: "H_src", Stoichiometry: map[string]float64{"b_c": 1}, UpperBound: 1000, Organism: "helper"},
	} {
		require.NoError(t, community.AddReaction(r))
	}
	sub, err := metnet.Extract(community, "closed", metnet.ExtractOptions{})
	require.NoError(t, err)
	for _, ex := range sub.Exchanges() {
		assert.Zero(t, ex.LowerBound, ex.ID)
		assert.Zero(t, ex.UpperBound, ex.ID)
	}

	p, dir, _ := newPipeline(t, pipeline.Config{Organism: "closed"})
	res, err := p.Run(context.Background(), community)
	require.NoError(t, err)
	assert.True(t, res.Initial.Feasible())
	assert.True(t, res.Initial.ObjectiveIsZero(fba.ZeroTolerance))
	assert.Len(t, res.Dead, 4)
	assert.ElementsMatch(t, []string{"H_src", "DM_c_c"}, res.Added)
	assert.True(t, res.Restored)
	assert.Equal(t, pipeline.StatePersisted, res.State())
	assert.Contains(t, listDir(t, dir), "closed_gap_filled_model.json")
}

func TestRunUnexpectedFillerError(t *testing.T) {
	boom := errors.New("boom")
	p, _, _ := newPipeline(t, pipeline.Config{Organism: "toy"}, pipeline.WithFiller(failingFiller{err: boom}))

	res, err := p.Run(context.Background(), communityModel(t))
	assert.ErrorIs(t, err, boom)
	assert.False(t, pipeline.Expected(err))
	assert.Equal(t, pipeline.StateGapFillAttempted, res.State())
}

func TestZeroFluxGateSkipsHealthySpecies(t *testing.T) {
	p, dir, _ := newPipeline(t, pipeline.Config{Organism: "grow", Gate: pipeline.GateZeroFlux},
		pipeline.WithFiller(failingFiller{err: errors.New("must not be called")}))

	res, err := p.Run(context.Background(), communityModel(t))
	require.NoError(t, err)
	assert.NotContains(t, res.States, pipeline.StateGapFillAttempted)
	assert.Equal(t, pipeline.StatePersisted, res.State())
	assert.InDelta(t, 5.0, res.Initial.ObjectiveValue, 1e-6)
	assert.Empty(t, res.Dead)
	assert.Equal(t, []string{"grow.csv"}, listDir(t, dir))
}

func TestObjectiveGateAlwaysGapFills(t *testing.T) {
	p, dir, _ := newPipeline(t, pipeline.Config{Organism: "grow"})

	res, err := p.Run(context.Background(), communityModel(t))
	require.NoError(t, err)
	assert.Contains(t, res.States, pipeline.StateGapFillAttempted)
	// A healthy model needs nothing added.
	assert.Empty(t, res.Added)
	assert.True(t, res.Restored)
	assert.Contains(t, listDir(t, dir), "grow_gap_filled_model.json")
}

func TestRunLabelAndChart(t *testing.T) {
	p, dir, _ := newPipeline(t, pipeline.Config{Organism: "grow", Label: "run42", Gate: pipeline.GateZeroFlux, Chart: true})

	res, err := p.Run(context.Background(), communityModel(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"run42.csv", "run42_flux.svg"}, listDir(t, dir))
	assert.Len(t, res.Files, 2)
}

func TestRunRecordsLedger(t *testing.T) {
	ledger, err := report.OpenLedger(filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	defer ledger.Close()

	p, _, _ := newPipeline(t, pipeline.Config{Organism: "toy"}, pipeline.WithLedger(ledger))
	res, err := p.Run(context.Background(), communityModel(t))
	require.NoError(t, err)

	entries, err := ledger.List(context.Background(), "toy")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.RunID, entries[0].RunID)
	assert.Equal(t, "persisted", entries[0].State)
	assert.ElementsMatch(t, res.Added, entries[0].AddedReactions)
	require.NotNil(t, entries[0].InitialObjective)
	assert.Zero(t, *entries[0].InitialObjective)
}

func TestRunNilCommunity(t *testing.T) {
	p, _, _ := newPipeline(t, pipeline.Config{Organism: "toy"})
	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyCommunity)
}

func TestRunBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	p, dir, _ := newPipeline(t, pipeline.Config{Workers: 2})
	outcomes, err := p.RunBatch(context.Background(), communityModel(t), []string{"toy", "grow", "nobio"})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "toy", outcomes[0].Organism)
	assert.Equal(t, pipeline.StatePersisted, outcomes[0].State())
	assert.Equal(t, pipeline.StatePersisted, outcomes[1].State())
	assert.Equal(t, pipeline.StateNoObjective, outcomes[2].State())
	assert.ErrorIs(t, outcomes[2].Err, fba.ErrNoObjectiveFound)

	files := listDir(t, dir)
	assert.Contains(t, files, "toy_gap_filled_model.json")
	assert.Contains(t, files, "grow.csv")
}

func TestRunBatchStopsOnUnexpectedError(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	p, _, _ := newPipeline(t, pipeline.Config{Workers: 1}, pipeline.WithFiller(failingFiller{err: boom}))
	_, err := p.RunBatch(context.Background(), communityModel(t), []string{"toy", "grow"})
	assert.ErrorIs(t, err, boom)
}
