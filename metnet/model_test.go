package metnet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabuddy/metnet"
)

// community returns a two-species model: ecoli reactions tagged explicitly, bsub reactions
// only recognisable by id.
func community(t *testing.T) *metnet.Model {
	t.Helper()
	m := metnet.NewModel("community")
	for _, id := range []string{"glc_e", "glc_c", "pyr_c", "ac_e"} {
		require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: id, Compartment: id[len(id)-1:]}))
	}
	rxns := []metnet.Reaction{
		{ID: "EX_glc_e", Stoichiometry: map[string]float64{"glc_e": -1}, LowerBound: -10, UpperBound: 1000, Organism: "ecoli"},
		{ID: "GLCt", Stoichiometry: map[string]float64{"glc_e": -1, "glc_c": 1}, UpperBound: 1000, Organism: "ecoli"},
		{ID: "GLYC", Stoichiometry: map[string]float64{"glc_c": -1, "pyr_c": 2}, UpperBound: 1000, Organism: "ecoli"},
		{ID: "BIOMASS_ecoli", Name: "Biomass", Stoichiometry: map[string]float64{"pyr_c": -1}, UpperBound: 1000, Organism: "ecoli"},
		{ID: "bsub_ACt", Stoichiometry: map[string]float64{"ac_e": -1}, LowerBound: -5, UpperBound: 1000},
	}
	for _, r := range rxns {
		require.NoError(t, m.AddReaction(r))
	}
	return m
}

func TestAddReactionRejectsBadInput(t *testing.T) {
	m := community(t)

	err := m.AddReaction(metnet.Reaction{ID: "GLCt", Stoichiometry: map[string]float64{"glc_e": -1}})
	assert.ErrorIs(t, err, metnet.ErrDuplicateReaction)

	err = m.AddReaction(metnet.Reaction{ID: "X", Stoichiometry: map[string]float64{"nope": -1}})
	assert.ErrorIs(t, err, metnet.ErrUnknownMetabolite)

	err = m.AddReaction(metnet.Reaction{ID: "Y", LowerBound: 5, UpperBound: 1})
	assert.ErrorIs(t, err, metnet.ErrInvalidBounds)

	assert.ErrorIs(t, m.AddReaction(metnet.Reaction{}), metnet.ErrEmptyID)
	assert.ErrorIs(t, m.AddMetabolite(metnet.Metabolite{ID: "glc_e"}), metnet.ErrDuplicateMetabolite)
	assert.Equal(t, 5, m.NumReactions())
}

func TestReactionReturnsCopy(t *testing.T) {
	m := community(t)
	r, ok := m.Reaction("GLCt")
	require.True(t, ok)
	r.Stoichiometry["glc_c"] = 42

	again, _ := m.Reaction("GLCt")
	assert.Equal(t, 1.0, again.Stoichiometry["glc_c"])
}

func TestRemoveReactionKeepsOrder(t *testing.T) {
	m := community(t)
	m.Objective = "GLCt"
	require.True(t, m.RemoveReaction("GLCt"))
	assert.False(t, m.RemoveReaction("GLCt"))
	assert.Empty(t, m.Objective)

	var ids []string
	for _, r := range m.Reactions() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"EX_glc_e", "GLYC", "BIOMASS_ecoli", "bsub_ACt"}, ids)
	idx, ok := m.ReactionIndex("BIOMASS_ecoli")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestPruneDropsUnusedMetabolites(t *testing.T) {
	m := community(t)
	m.RemoveReaction("bsub_ACt")
	m.Prune()
	assert.False(t, m.HasMetabolite("ac_e"))
	assert.Equal(t, 3, m.NumMetabolites())
}

func TestSetBounds(t *testing.T) {
	m := community(t)
	require.NoError(t, m.SetBounds("EX_glc_e", 0, 0))
	r, _ := m.Reaction("EX_glc_e")
	assert.Zero(t, r.LowerBound)
	assert.ErrorIs(t, m.SetBounds("EX_glc_e", 1, 0), metnet.ErrInvalidBounds)
	assert.Error(t, m.SetBounds("missing", 0, 1))
}

func TestExchanges(t *testing.T) {
	m := community(t)
	var ids []string
	for _, r := range m.Exchanges() {
		ids = append(ids, r.ID)
	}
	// bsub_ACt has a single metabolite and counts as an exchange without the prefix.
	assert.Equal(t, []string{"EX_glc_e", "BIOMASS_ecoli", "bsub_ACt"}, ids)
}

func TestValidateUnknownObjective(t *testing.T) {
	m := community(t)
	m.Objective = "nope"
	assert.ErrorIs(t, m.Validate(), metnet.ErrUnknownObjective)
	m.Objective = "BIOMASS_ecoli"
	assert.NoError(t, m.Validate())
}

func TestStoichiometricMatrix(t *testing.T) {
	m := community(t)
	s := m.StoichiometricMatrix()
	require.NotNil(t, s)
	r, c := s.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 5, c)
	// glc_c row, GLYC column
	assert.Equal(t, -1.0, s.At(1, 2))
	assert.Equal(t, 2.0, s.At(2, 2))

	assert.Nil(t, metnet.NewModel("empty").StoichiometricMatrix())
}

func TestCloneIsIndependent(t *testing.T) {
	m := community(t)
	c := m.Clone()
	require.NoError(t, c.SetBounds("GLCt", -1, 1))
	c.RemoveReaction("GLYC")

	r, _ := m.Reaction("GLCt")
	assert.Zero(t, r.LowerBound)
	assert.True(t, m.HasReaction("GLYC"))
}

func TestReversible(t *testing.T) {
	assert.True(t, metnet.Reaction{LowerBound: -1, UpperBound: 1}.Reversible())
	assert.False(t, metnet.Reaction{LowerBound: 0, UpperBound: 1}.Reversible())
}
