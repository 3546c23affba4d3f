package fba

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"metabuddy/metnet"
)

const biomassKeyword = "biomass"

// SelectObjective picks the biomass reaction of m. Reactions explicitly flagged as
// objective candidates win; otherwise the first reaction, in model order, whose id or name
// contains "biomass" (case-insensitive) is chosen. ok is false when there is none.
func SelectObjective(m *metnet.Model) (id string, ok bool) {
	rxns := m.Reactions()
	for _, r := range rxns {
		if r.ObjectiveCandidate {
			return r.ID, true
		}
	}
	for _, r := range rxns {
		if strings.Contains(strings.ToLower(r.ID), biomassKeyword) ||
			strings.Contains(strings.ToLower(r.Name), biomassKeyword) {
			return r.ID, true
		}
	}
	return "", false
}

// SetObjective selects the biomass objective and solves once to report its flux. An
// infeasible solve is not an error: the returned solution has StatusInfeasible. Without a
// biomass reaction it returns ErrNoObjectiveFound and a nil solution.
func SetObjective(ctx context.Context, solver Solver, m *metnet.Model) (string, *Solution, error) {
	id, ok := SelectObjective(m)
	if !ok {
		log.Warn().Str("model", m.ID).Msg("No biomass reaction found")
		return "", nil, ErrNoObjectiveFound
	}
	log.Info().Str("model", m.ID).Str("objective", id).Msg("Biomass reaction set as the objective function")

	sol, err := solver.Solve(ctx, Problem{Model: m, Objective: id, Sense: Maximize})
	switch {
	case errors.Is(err, ErrInfeasible):
		log.Warn().Str("model", m.ID).Str("objective", id).Msg("Objective solve is infeasible")
		return id, Infeasible(id), nil
	case err != nil:
		return id, nil, err
	}
	log.Info().Str("model", m.ID).Float64("objective_value", sol.ObjectiveValue).Msg("Biomass flux (objective value)")
	return id, sol, nil
}
