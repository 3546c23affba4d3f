package gapfill

import "fmt"

// Policy decides which of several gap-fill solutions is applied.
type Policy string

const (
	// PolicyFirst takes the first solution found.
	PolicyFirst Policy = "first"
	// PolicyMinCardinality takes the solution adding the fewest reactions.
	PolicyMinCardinality Policy = "min-cardinality"
	// PolicyMinFlux takes the solution with the least total flux through added reactions.
	PolicyMinFlux Policy = "min-flux"
)

// ParsePolicy validates a policy name. The empty string means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyFirst, nil
	case PolicyFirst, PolicyMinCardinality, PolicyMinFlux:
		return p, nil
	}
	return "", fmt.Errorf("gapfill: unknown selection policy %q", s)
}

// Select applies the policy to the result. Ties keep the earlier solution. ok is false for
// an empty result.
func Select(res Result, p Policy) (Solution, bool) {
	if len(res.Solutions) == 0 {
		return Solution{}, false
	}
	best := 0
	for i := 1; i < len(res.Solutions); i++ {
		s, b := res.Solutions[i], res.Solutions[best]
		switch p {
		case PolicyMinCardinality:
			if len(s.Reactions) < len(b.Reactions) {
				best = i
			}
		case PolicyMinFlux:
			if s.TotalFlux < b.TotalFlux {
				best = i
			}
		}
	}
	return res.Solutions[best], true
}
