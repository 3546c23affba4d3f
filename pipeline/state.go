package pipeline

import "fmt"

// State is a stage of a pipeline run.
type State string

const (
	StateExtracted         State = "extracted"
	StateValidated         State = "validated"
	StateObjectiveSet      State = "objective_set"
	StateSolved            State = "solved"
	StateInfeasibleChecked State = "infeasible_checked"
	StateGapFillAttempted  State = "gap_fill_attempted"
	StateRefined           State = "refined"
	StatePersisted         State = "persisted"

	// Terminal failures.
	StateNoObjective State = "no_objective"
	StateUnresolved  State = "unresolved"
)

// Terminal reports whether no stage follows s.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateNoObjective || s == StateUnresolved
}

// allowed lists the legal transitions.
var allowed = map[State][]State{
	"":                     {StateExtracted},
	StateExtracted:         {StateValidated},
	StateValidated:         {StateObjectiveSet, StateNoObjective},
	StateObjectiveSet:      {StateSolved},
	StateSolved:            {StateInfeasibleChecked},
	StateInfeasibleChecked: {StateGapFillAttempted, StatePersisted},
	StateGapFillAttempted:  {StateRefined, StateUnresolved},
	StateRefined:           {StatePersisted},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Gate decides when a run attempts gap-filling.
type Gate string

const (
	// GateObjectiveExists gap-fills whenever a biomass objective was found, whatever its flux.
	GateObjectiveExists Gate = "objective"
	// GateZeroFlux gap-fills only when the objective carries no flux or the solve is infeasible.
	GateZeroFlux Gate = "zero_flux"
)

// ParseGate validates a gate name. The empty string means GateObjectiveExists.
func ParseGate(s string) (Gate, error) {
	switch g := Gate(s); g {
	case "":
		return GateObjectiveExists, nil
	case GateObjectiveExists, GateZeroFlux:
		return g, nil
	}
	return "", fmt.Errorf("pipeline: unknown gap-fill gate %q", s)
}
