package metnet

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	common "metabuddy/utils"
)

// ModelLoadError is returned when a model document cannot be read, decoded or validated.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("metnet: load %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Format is the encoding of a model document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the document format from the file extension (".gz" is ignored).
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(common.TrimCompression(path))) {
	case ".json":
		return FormatJSON, nil
	case ".yml", ".yaml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("metnet: unsupported model format %q", filepath.Ext(path))
	}
}

// COBRA-style document layout shared by the JSON and YAML encodings.
type document struct {
	ID          string          `json:"id" yaml:"id"`
	Metabolites []metaboliteDoc `json:"metabolites" yaml:"metabolites"`
	Reactions   []reactionDoc   `json:"reactions" yaml:"reactions"`
}

type metaboliteDoc struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Compartment string `json:"compartment,omitempty" yaml:"compartment,omitempty"`
}

type reactionDoc struct {
	ID                   string             `json:"id" yaml:"id"`
	Name                 string             `json:"name,omitempty" yaml:"name,omitempty"`
	Metabolites          map[string]float64 `json:"metabolites" yaml:"metabolites"`
	LowerBound           *float64           `json:"lower_bound,omitempty" yaml:"lower_bound,omitempty"`
	UpperBound           *float64           `json:"upper_bound,omitempty" yaml:"upper_bound,omitempty"`
	ObjectiveCoefficient float64            `json:"objective_coefficient,omitempty" yaml:"objective_coefficient,omitempty"`
	Organism             string             `json:"organism,omitempty" yaml:"organism,omitempty"`
	ObjectiveCandidate   bool               `json:"objective_candidate,omitempty" yaml:"objective_candidate,omitempty"`
	Subsystem            string             `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`
	GeneReactionRule     string             `json:"gene_reaction_rule,omitempty" yaml:"gene_reaction_rule,omitempty"`
}

// Load reads a model document. Any failure is reported as *ModelLoadError.
func Load(path string) (*Model, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	rc, err := common.OpenMaybeGzip(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	defer rc.Close()

	m, err := Decode(rc, format)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return m, nil
}

// Decode parses a document from r.
func Decode(r io.Reader, format Format) (*Model, error) {
	var doc document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("metnet: unknown format %d", format)
	}
	return fromDocument(doc)
}

func fromDocument(doc document) (*Model, error) {
	m := NewModel(doc.ID)
	for _, md := range doc.Metabolites {
		if err := m.AddMetabolite(Metabolite{ID: md.ID, Name: md.Name, Compartment: md.Compartment}); err != nil {
			return nil, err
		}
	}
	for _, rd := range doc.Reactions {
		rxn := Reaction{
			ID:                 rd.ID,
			Name:               rd.Name,
			Stoichiometry:      rd.Metabolites,
			LowerBound:         0,
			UpperBound:         DefaultBound,
			Organism:           rd.Organism,
			ObjectiveCandidate: rd.ObjectiveCandidate,
			Subsystem:          rd.Subsystem,
			GeneRule:           rd.GeneReactionRule,
		}
		// YAML can spell .inf; loaded models keep the same finite bounds JSON would give.
		if rd.LowerBound != nil {
			rxn.LowerBound = finiteBound(*rd.LowerBound)
		}
		if rd.UpperBound != nil {
			rxn.UpperBound = finiteBound(*rd.UpperBound)
		}
		if err := m.AddReaction(rxn); err != nil {
			return nil, err
		}
		// First non-zero coefficient wins; documents with several are rare and ambiguous.
		if rd.ObjectiveCoefficient != 0 && m.Objective == "" {
			m.Objective = rd.ID
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes m to path, choosing the encoding from the extension. objective, when not
// empty, is written as the only reaction with objective_coefficient 1. The file is replaced
// atomically.
func Save(path string, m *Model, objective string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".gz") {
		return fmt.Errorf("metnet: writing compressed models is not supported: %s", path)
	}
	return common.WriteFileAtomic(path, func(w io.Writer) error {
		return Encode(w, m, objective, format)
	})
}

// Encode writes m in the given format.
func Encode(w io.Writer, m *Model, objective string, format Format) error {
	doc := toDocument(m, objective)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("metnet: unknown format %d", format)
	}
}

func toDocument(m *Model, objective string) document {
	doc := document{ID: m.ID}
	for _, met := range m.metabolites {
		doc.Metabolites = append(doc.Metabolites, metaboliteDoc(met))
	}
	for _, r := range m.reactions {
		lb, ub := finiteBound(r.LowerBound), finiteBound(r.UpperBound)
		rd := reactionDoc{
			ID:                 r.ID,
			Name:               r.Name,
			Metabolites:        r.Stoichiometry,
			LowerBound:         &lb,
			UpperBound:         &ub,
			Organism:           r.Organism,
			ObjectiveCandidate: r.ObjectiveCandidate,
			Subsystem:          r.Subsystem,
			GeneReactionRule:   r.GeneRule,
		}
		if r.ID == objective {
			rd.ObjectiveCoefficient = 1
		}
		doc.Reactions = append(doc.Reactions, rd)
	}
	return doc
}

// JSON has no infinity; open bounds are read and written with the conventional magnitude.
func finiteBound(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return DefaultBound
	case math.IsInf(v, -1):
		return -DefaultBound
	}
	return v
}
