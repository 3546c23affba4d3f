package metnet

import (
	"errors"
	"strings"
)

var ErrEmptyOrganism = errors.New("metnet: empty organism identifier")

// ExtractOptions tune how reactions are attributed to an organism.
type ExtractOptions struct {
	// Strict disables the id-substring fallback for reactions without an Organism tag.
	Strict bool
}

// BelongsTo reports whether rxn is attributed to organism. An explicit Organism tag
// decides on its own; untagged reactions fall back to a substring match on the id
// unless strict is set.
func BelongsTo(rxn Reaction, organism string, strict bool) bool {
	if rxn.Organism != "" {
		return rxn.Organism == organism
	}
	if strict {
		return false
	}
	return strings.Contains(rxn.ID, organism)
}

// Extract builds the species sub-model of organism from a community model. The community
// model is not modified and the result shares no state with it. No matching reaction
// gives an empty, valid model.
func Extract(community *Model, organism string, opts ExtractOptions) (*Model, error) {
	if organism == "" {
		return nil, ErrEmptyOrganism
	}

	sub := NewModel(organism)
	used := make(map[string]bool)
	var kept []Reaction
	for _, r := range community.reactions {
		if !BelongsTo(r, organism, opts.Strict) {
			continue
		}
		kept = append(kept, r)
		for met := range r.Stoichiometry {
			used[met] = true
		}
	}

	// Metabolites keep community order.
	for _, met := range community.metabolites {
		if used[met.ID] {
			if err := sub.AddMetabolite(met); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range kept {
		if err := sub.AddReaction(r); err != nil {
			return nil, err
		}
	}
	if community.Objective != "" && sub.HasReaction(community.Objective) {
		sub.Objective = community.Objective
	}
	return sub, nil
}

// Organisms lists the explicit organism tags of a model in first-seen order.
func Organisms(m *Model) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.reactions {
		if r.Organism != "" && !seen[r.Organism] {
			seen[r.Organism] = true
			out = append(out, r.Organism)
		}
	}
	return out
}
