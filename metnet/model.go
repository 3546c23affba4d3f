// Package metnet holds the in-memory metabolic network: metabolites, reactions with their
// stoichiometry and flux bounds, and the helpers that derive species sub-models from a
// community model.
//
// Reactions and metabolites keep the order in which they were added (document order when
// loaded from a file). Everything that scans a model, such as objective selection or flux
// tables, walks that order so repeated runs give identical results.
package metnet

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultBound is the magnitude used for "open" flux bounds, matching the COBRA convention.
const DefaultBound = 1000.0

var (
	ErrDuplicateReaction   = errors.New("metnet: duplicate reaction id")
	ErrDuplicateMetabolite = errors.New("metnet: duplicate metabolite id")
	ErrUnknownMetabolite   = errors.New("metnet: reaction references unknown metabolite")
	ErrInvalidBounds       = errors.New("metnet: lower bound exceeds upper bound")
	ErrUnknownObjective    = errors.New("metnet: objective is not a reaction of the model")
	ErrEmptyID             = errors.New("metnet: empty identifier")
)

// Metabolite is a chemical species in one compartment.
type Metabolite struct {
	ID          string
	Name        string
	Compartment string
}

// Reaction transforms metabolites. Negative coefficients are consumed, positive produced.
type Reaction struct {
	ID            string
	Name          string
	Stoichiometry map[string]float64
	LowerBound    float64
	UpperBound    float64

	// Organism is the explicit owner tag. Empty means "untagged", in which case
	// extraction falls back to matching the organism against the reaction id.
	Organism string
	// ObjectiveCandidate marks biomass-like reactions explicitly.
	ObjectiveCandidate bool

	Subsystem string
	GeneRule  string
}

// Reversible reports whether the reaction may carry flux in both directions.
func (r Reaction) Reversible() bool {
	return r.LowerBound < 0 && r.UpperBound > 0
}

// Clone returns a deep copy of the reaction.
func (r Reaction) Clone() Reaction {
	c := r
	c.Stoichiometry = make(map[string]float64, len(r.Stoichiometry))
	for k, v := range r.Stoichiometry {
		c.Stoichiometry[k] = v
	}
	return c
}

// Model is a metabolic network.
type Model struct {
	ID string
	// Objective is the objective designated by the source document, if any. Solvers never
	// read it; the objective to optimise is always passed explicitly.
	Objective string

	metabolites []Metabolite
	metIndex    map[string]int
	reactions   []Reaction
	rxnIndex    map[string]int
}

// NewModel returns an empty model.
func NewModel(id string) *Model {
	return &Model{
		ID:       id,
		metIndex: make(map[string]int),
		rxnIndex: make(map[string]int),
	}
}

// AddMetabolite appends a metabolite.
func (m *Model) AddMetabolite(met Metabolite) error {
	if met.ID == "" {
		return ErrEmptyID
	}
	if _, ok := m.metIndex[met.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMetabolite, met.ID)
	}
	m.metIndex[met.ID] = len(m.metabolites)
	m.metabolites = append(m.metabolites, met)
	return nil
}

// AddReaction appends a copy of rxn. All metabolites it references must already exist.
func (m *Model) AddReaction(rxn Reaction) error {
	if rxn.ID == "" {
		return ErrEmptyID
	}
	if _, ok := m.rxnIndex[rxn.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateReaction, rxn.ID)
	}
	if err := checkBounds(rxn); err != nil {
		return err
	}
	for met := range rxn.Stoichiometry {
		if _, ok := m.metIndex[met]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnknownMetabolite, met, rxn.ID)
		}
	}
	m.rxnIndex[rxn.ID] = len(m.reactions)
	m.reactions = append(m.reactions, rxn.Clone())
	return nil
}

// RemoveReaction deletes a reaction, keeping the order of the others. Metabolites are left
// in place; use Prune to drop the ones no longer referenced.
func (m *Model) RemoveReaction(id string) bool {
	idx, ok := m.rxnIndex[id]
	if !ok {
		return false
	}
	m.reactions = append(m.reactions[:idx], m.reactions[idx+1:]...)
	delete(m.rxnIndex, id)
	for i := idx; i < len(m.reactions); i++ {
		m.rxnIndex[m.reactions[i].ID] = i
	}
	if m.Objective == id {
		m.Objective = ""
	}
	return true
}

// Prune removes metabolites that no reaction references.
func (m *Model) Prune() {
	used := make(map[string]bool)
	for _, r := range m.reactions {
		for met := range r.Stoichiometry {
			used[met] = true
		}
	}
	kept := m.metabolites[:0]
	m.metIndex = make(map[string]int, len(used))
	for _, met := range m.metabolites {
		if used[met.ID] {
			m.metIndex[met.ID] = len(kept)
			kept = append(kept, met)
		}
	}
	m.metabolites = kept
}

// SetBounds replaces the bounds of an existing reaction.
func (m *Model) SetBounds(id string, lb, ub float64) error {
	idx, ok := m.rxnIndex[id]
	if !ok {
		return fmt.Errorf("metnet: unknown reaction %s", id)
	}
	r := m.reactions[idx]
	r.LowerBound, r.UpperBound = lb, ub
	if err := checkBounds(r); err != nil {
		return err
	}
	m.reactions[idx] = r
	return nil
}

// Reaction returns a copy of the reaction with the given id.
func (m *Model) Reaction(id string) (Reaction, bool) {
	idx, ok := m.rxnIndex[id]
	if !ok {
		return Reaction{}, false
	}
	return m.reactions[idx].Clone(), true
}

// Metabolite returns the metabolite with the given id.
func (m *Model) Metabolite(id string) (Metabolite, bool) {
	idx, ok := m.metIndex[id]
	if !ok {
		return Metabolite{}, false
	}
	return m.metabolites[idx], true
}

func (m *Model) HasReaction(id string) bool {
	_, ok := m.rxnIndex[id]
	return ok
}

func (m *Model) HasMetabolite(id string) bool {
	_, ok := m.metIndex[id]
	return ok
}

// Reactions returns the reactions in insertion order. The slice is a copy, the
// stoichiometry maps are not; treat them as read-only.
func (m *Model) Reactions() []Reaction {
	out := make([]Reaction, len(m.reactions))
	copy(out, m.reactions)
	return out
}

// Metabolites returns the metabolites in insertion order.
func (m *Model) Metabolites() []Metabolite {
	out := make([]Metabolite, len(m.metabolites))
	copy(out, m.metabolites)
	return out
}

func (m *Model) NumReactions() int   { return len(m.reactions) }
func (m *Model) NumMetabolites() int { return len(m.metabolites) }

// ReactionIndex returns the column of the reaction in StoichiometricMatrix.
func (m *Model) ReactionIndex(id string) (int, bool) {
	idx, ok := m.rxnIndex[id]
	return idx, ok
}

// IsExchange reports whether r crosses the system boundary: the EX_ prefix convention or
// a single participating metabolite.
func IsExchange(r Reaction) bool {
	return strings.HasPrefix(r.ID, "EX_") || len(r.Stoichiometry) == 1
}

// Exchanges returns the exchange reactions in model order.
func (m *Model) Exchanges() []Reaction {
	var out []Reaction
	for _, r := range m.reactions {
		if IsExchange(r) {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy sharing no mutable state with m.
func (m *Model) Clone() *Model {
	c := NewModel(m.ID)
	c.Objective = m.Objective
	c.metabolites = make([]Metabolite, len(m.metabolites))
	copy(c.metabolites, m.metabolites)
	for id, i := range m.metIndex {
		c.metIndex[id] = i
	}
	c.reactions = make([]Reaction, len(m.reactions))
	for i, r := range m.reactions {
		c.reactions[i] = r.Clone()
		c.rxnIndex[r.ID] = i
	}
	return c
}

// Validate checks the model invariants.
func (m *Model) Validate() error {
	for _, r := range m.reactions {
		if err := checkBounds(r); err != nil {
			return err
		}
		for met := range r.Stoichiometry {
			if !m.HasMetabolite(met) {
				return fmt.Errorf("%w: %s in %s", ErrUnknownMetabolite, met, r.ID)
			}
		}
	}
	if m.Objective != "" && !m.HasReaction(m.Objective) {
		return fmt.Errorf("%w: %s", ErrUnknownObjective, m.Objective)
	}
	return nil
}

// StoichiometricMatrix returns S with one row per metabolite and one column per reaction,
// both in model order. An empty model yields nil.
func (m *Model) StoichiometricMatrix() *mat.Dense {
	if len(m.metabolites) == 0 || len(m.reactions) == 0 {
		return nil
	}
	s := mat.NewDense(len(m.metabolites), len(m.reactions), nil)
	for j, r := range m.reactions {
		for met, coef := range r.Stoichiometry {
			s.Set(m.metIndex[met], j, coef)
		}
	}
	return s
}

func checkBounds(r Reaction) error {
	if math.IsNaN(r.LowerBound) || math.IsNaN(r.UpperBound) {
		return fmt.Errorf("metnet: NaN bound on %s", r.ID)
	}
	if r.LowerBound > r.UpperBound {
		return fmt.Errorf("%w: %s [%g, %g]", ErrInvalidBounds, r.ID, r.LowerBound, r.UpperBound)
	}
	return nil
}
