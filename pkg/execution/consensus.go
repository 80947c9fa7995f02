package execution

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/selection"
)

// runConsensus invokes every decision engine concurrently and reconciles the
// survivors. With fewer than two survivors it degrades: a lone survivor is
// returned as is, otherwise the decision's fallbacks are chained.
func (x *Executor) runConsensus(ctx context.Context, req *engines.MatchRequest, fp string, dec *selection.Decision) (*Result, error) {
	outcomes := make([]Outcome, len(dec.Engines))

	var wg sync.WaitGroup
	for i, id := range dec.Engines {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = x.attempt(ctx, req, fp, id)
		}(i, id)
	}
	// Each attempt returns by its own deadline, so the join is bounded by the
	// largest timeout in the decision.
	wg.Wait()

	var survivors []Outcome
	for _, o := range outcomes {
		if o.Status.Succeeded() {
			survivors = append(survivors, o)
		}
	}

	switch {
	case len(survivors) >= 2:
		res := x.combine(survivors, dec.Tolerance)
		res.Tried = len(outcomes)
		res.Attempts = outcomes
		if res.LowConfidence {
			x.logger.Warn("consensus engines disagree",
				"request_id", req.RequestID,
				"engines", res.Engines,
				"tolerance", dec.Tolerance,
			)
		}
		return res, nil

	case len(survivors) == 1:
		o := survivors[0]
		x.logger.Warn("consensus degraded to a single engine",
			"request_id", req.RequestID,
			"engine", o.Engine,
		)
		return &Result{
			Reason:     ReasonConsensusDegraded,
			EngineUsed: o.Engine,
			Engines:    []string{o.Engine},
			Score:      o.Score,
			SubScores:  o.SubScores,
			Confidence: o.Confidence,
			CacheHit:   o.Status == engines.StatusCacheHit,
			Tried:      len(outcomes),
			Attempts:   outcomes,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, abandoned(req.RequestID, err)
	}

	x.logger.Warn("all consensus engines failed, trying fallbacks",
		"request_id", req.RequestID,
		"fallbacks", dec.Fallbacks,
	)
	res, err := x.runChain(ctx, req, fp, dec.Fallbacks, outcomes)
	if err != nil {
		return nil, err
	}
	res.Reason = ReasonConsensusDegraded
	return res, nil
}

// combine averages the survivors' scores weighted by the engines' current
// weights. Sub-scores are combined only for keys every survivor reports.
func (x *Executor) combine(survivors []Outcome, tolerance float64) *Result {
	weights := make([]float64, len(survivors))
	var total float64
	for i, o := range survivors {
		if desc, ok := x.registry.Lookup(o.Engine); ok {
			weights[i] = desc.Weight()
		}
		total += weights[i]
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	res := &Result{
		Reason:   ReasonConsensus,
		CacheHit: true,
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	ids := make([]string, len(survivors))
	for i, o := range survivors {
		w := weights[i] / total
		res.Score += w * o.Score
		res.Confidence += w * o.Confidence
		lo = math.Min(lo, o.Score)
		hi = math.Max(hi, o.Score)
		ids[i] = o.Engine
		if o.Status != engines.StatusCacheHit {
			res.CacheHit = false
		}
	}
	res.Engines = ids
	res.EngineUsed = strings.Join(ids, "+")
	res.SubScores = combineSubScores(survivors, weights, total)

	if hi-lo > tolerance {
		res.LowConfidence = true
		res.Reason = ReasonConsensusDisagreement
	}
	return res
}

func combineSubScores(survivors []Outcome, weights []float64, total float64) map[string]float64 {
	var keys []string
	for k := range survivors[0].SubScores {
		common := true
		for _, o := range survivors[1:] {
			if _, ok := o.SubScores[k]; !ok {
				common = false
				break
			}
		}
		if common {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		for i, o := range survivors {
			out[k] += weights[i] / total * o.SubScores[k]
		}
	}
	return out
}

// IsAllEnginesFailed reports whether err means no engine produced a score.
func IsAllEnginesFailed(err error) bool {
	return errors.Is(err, ErrAllEnginesFailed)
}
