package gapfill

import (
	"fmt"

	"metabuddy/metnet"
)

// Merge adds the reactions of sol to m, together with any metabolites they need. Reactions
// already present are skipped, so merging twice is harmless. It returns the ids actually added.
func Merge(m *metnet.Model, sol Solution) ([]string, error) {
	for _, met := range sol.Metabolites {
		if m.HasMetabolite(met.ID) {
			continue
		}
		if err := m.AddMetabolite(met); err != nil {
			return nil, err
		}
	}

	var added []string
	for _, r := range sol.Reactions {
		if m.HasReaction(r.ID) {
			continue
		}
		for met := range r.Stoichiometry {
			if !m.HasMetabolite(met) {
				if err := m.AddMetabolite(metnet.Metabolite{ID: met}); err != nil {
					return added, err
				}
			}
		}
		if err := m.AddReaction(r); err != nil {
			return added, fmt.Errorf("gapfill: merge %s: %w", r.ID, err)
		}
		added = append(added, r.ID)
	}
	return added, nil
}
