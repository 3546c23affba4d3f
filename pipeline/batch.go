package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"metabuddy/fba"
	"metabuddy/gapfill"
	"metabuddy/metnet"
)

// Expected reports whether err is one of the terminal outcomes a run can end in without
// anything being wrong with the pipeline itself.
func Expected(err error) bool {
	return errors.Is(err, fba.ErrNoObjectiveFound) ||
		errors.Is(err, gapfill.ErrGapFillExhausted) ||
		errors.Is(err, fba.ErrSolverTimeout)
}

// RunBatch analyses several organisms of the same community, at most Config.Workers at a
// time. Each run extracts its own sub-model; community is shared and only read. Outcomes
// come back in the order of organisms. Expected terminal failures stay in Outcome.Err; any
// other error cancels the remaining runs and is returned.
func (p *Pipeline) RunBatch(ctx context.Context, community *metnet.Model, organisms []string) ([]*Outcome, error) {
	if community == nil {
		return nil, ErrEmptyCommunity
	}
	outcomes := make([]*Outcome, len(organisms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, organism := range organisms {
		i, organism := i, organism
		g.Go(func() error {
			out, err := p.run(gctx, community, organism, organism)
			outcomes[i] = out
			if err != nil && !Expected(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
