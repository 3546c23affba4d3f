package sanity_check

import (
	"context"
	"fmt"
	"os"
	"time"

	"metabuddy/config" // Version control file
	"metabuddy/fba"
	"metabuddy/metnet"
)

// ToyModel is a three reaction network whose biomass flux is limited to 10 by the uptake bound.
func ToyModel() *metnet.Model {
	m := metnet.NewModel("sanity_toy")
	_ = m.AddMetabolite(metnet.Metabolite{ID: "a_e", Compartment: "e"})
	_ = m.AddMetabolite(metnet.Metabolite{ID: "b_c", Compartment: "c"})
	_ = m.AddReaction(metnet.Reaction{ID: "EX_a_e", Name: "a exchange",
		Stoichiometry: map[string]float64{"a_e": -1}, LowerBound: -10, UpperBound: metnet.DefaultBound})
	_ = m.AddReaction(metnet.Reaction{ID: "R_a_to_b", Name: "a to b",
		Stoichiometry: map[string]float64{"a_e": -1, "b_c": 1}, LowerBound: 0, UpperBound: metnet.DefaultBound})
	_ = m.AddReaction(metnet.Reaction{ID: "BIOMASS_toy", Name: "Biomass",
		Stoichiometry: map[string]float64{"b_c": -1}, LowerBound: 0, UpperBound: metnet.DefaultBound})
	return m
}

// Check solves ToyModel and verifies the expected objective.
func Check(ctx context.Context) error {
	solver := fba.NewSimplexSolver(fba.SolverOptions{Timeout: 10 * time.Second})
	_, sol, err := fba.SetObjective(ctx, solver, ToyModel())
	if err != nil {
		return err
	}
	if !sol.Feasible() || !fba.IsZero(sol.ObjectiveValue-10, fba.ZeroTolerance) {
		return fmt.Errorf("sanity_check: expected biomass flux 10, got %g (%s)", sol.ObjectiveValue, sol.Status)
	}
	return nil
}

// Run performs a simple sanity check to ensure metabuddy is
// running properly printing helpful message and version number.
func Run(args []string) {
	fmt.Printf("Successfully running metabuddy! (%s)\n", config.Main_version)
	if err := Check(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Solver check failed:", err)
		os.Exit(1)
	}
	fmt.Println("Solver check passed: toy network reaches biomass flux 10.")
}
