package metnet_test

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabuddy/metnet"
)

const sampleJSON = `{
  "id": "toy",
  "metabolites": [
    {"id": "a_e", "compartment": "e"},
    {"id": "b_c", "compartment": "c"}
  ],
  "reactions": [
    {"id": "EX_a_e", "metabolites": {"a_e": -1}, "lower_bound": -10, "upper_bound": 1000},
    {"id": "R1", "metabolites": {"a_e": -1, "b_c": 1}},
    {"id": "BIOMASS", "name": "Biomass", "metabolites": {"b_c": -1}, "objective_coefficient": 1, "organism": "toy"}
  ]
}`

func TestDecodeDefaults(t *testing.T) {
	m, err := metnet.Decode(strings.NewReader(sampleJSON), metnet.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "toy", m.ID)
	assert.Equal(t, "BIOMASS", m.Objective)

	r, ok := m.Reaction("R1")
	require.True(t, ok)
	assert.Zero(t, r.LowerBound)
	assert.Equal(t, metnet.DefaultBound, r.UpperBound)

	b, _ := m.Reaction("BIOMASS")
	assert.Equal(t, "toy", b.Organism)
}

const openYAML = `id: open
metabolites:
  - id: a_e
reactions:
  - id: EX_a_e
    metabolites: {a_e: -1}
    lower_bound: -.inf
    upper_bound: .inf
  - id: BIOMASS
    metabolites: {a_e: -1}
    lower_bound: 0
    upper_bound: .Inf
`

func TestDecodeClampsInfiniteBounds(t *testing.T) {
	m, err := metnet.Decode(strings.NewReader(openYAML), metnet.FormatYAML)
	require.NoError(t, err)

	ex, ok := m.Reaction("EX_a_e")
	require.True(t, ok)
	assert.Equal(t, -metnet.DefaultBound, ex.LowerBound)
	assert.Equal(t, metnet.DefaultBound, ex.UpperBound)

	bio, _ := m.Reaction("BIOMASS")
	assert.Equal(t, metnet.DefaultBound, bio.UpperBound)
	assert.False(t, math.IsInf(bio.UpperBound, 0))
}

func TestDecodeRejectsUnknownMetabolite(t *testing.T) {
	doc := `{"id": "x", "metabolites": [], "reactions": [{"id": "R", "metabolites": {"q": 1}}]}`
	_, err := metnet.Decode(strings.NewReader(doc), metnet.FormatJSON)
	assert.ErrorIs(t, err, metnet.ErrUnknownMetabolite)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src, err := metnet.Decode(strings.NewReader(sampleJSON), metnet.FormatJSON)
	require.NoError(t, err)

	for _, name := range []string{"model.json", "model.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, metnet.Save(path, src, "BIOMASS"))

			got, err := metnet.Load(path)
			require.NoError(t, err)
			assert.Equal(t, "BIOMASS", got.Objective)
			assert.Empty(t, cmp.Diff(src.Reactions(), got.Reactions()))
			assert.Empty(t, cmp.Diff(src.Metabolites(), got.Metabolites()))
		})
	}
}

func TestSaveWritesInfiniteBoundsAsDefault(t *testing.T) {
	m := metnet.NewModel("inf")
	require.NoError(t, m.AddMetabolite(metnet.Metabolite{ID: "a"}))
	require.NoError(t, m.AddReaction(metnet.Reaction{ID: "EX_a", Stoichiometry: map[string]float64{"a": -1},
		LowerBound: math.Inf(-1), UpperBound: math.Inf(1)}))

	var buf bytes.Buffer
	require.NoError(t, metnet.Encode(&buf, m, "", metnet.FormatJSON))
	got, err := metnet.Decode(&buf, metnet.FormatJSON)
	require.NoError(t, err)
	r, _ := got.Reaction("EX_a")
	assert.Equal(t, -metnet.DefaultBound, r.LowerBound)
	assert.Equal(t, metnet.DefaultBound, r.UpperBound)
}

func TestLoadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	m, err := metnet.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumReactions())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	for _, path := range []string{
		filepath.Join(dir, "missing.json"),
		bad,
		filepath.Join(dir, "model.sbml"),
	} {
		_, err := metnet.Load(path)
		var loadErr *metnet.ModelLoadError
		require.True(t, errors.As(err, &loadErr), path)
		assert.Equal(t, path, loadErr.Path)
	}
}

func TestSaveRejectsCompressed(t *testing.T) {
	m := metnet.NewModel("x")
	assert.Error(t, metnet.Save(filepath.Join(t.TempDir(), "x.json.gz"), m, ""))
}

func TestFormatFor(t *testing.T) {
	f, err := metnet.FormatFor("a/b.YAML.gz")
	require.NoError(t, err)
	assert.Equal(t, metnet.FormatYAML, f)
	_, err = metnet.FormatFor("x.xml")
	assert.Error(t, err)
}
