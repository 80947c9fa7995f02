package selection

import (
	"strings"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
)

// candidates is the input every rule sees: the request, the configuration in
// effect, and the pool of engines that are enabled and admitted by their
// breaker, ordered by descending weight.
type candidates struct {
	req      *engines.MatchRequest
	cfg      *Config
	pool     []*registry.Descriptor
	admitted map[string]bool
	baseline *registry.Descriptor
}

// chain returns primary followed by its admitted fallback targets, in
// declared order.
func (c *candidates) chain(primary *registry.Descriptor) []string {
	out := []string{primary.ID}
	for _, fb := range primary.Fallbacks {
		if c.admitted[fb] {
			out = append(out, fb)
		}
	}
	return out
}

// Rule is one row of the decision table. Evaluate returns a decision and true
// when the rule matches.
type Rule struct {
	Reason   Reason
	Evaluate func(c *candidates) (*Decision, bool)
}

// DefaultRules returns the decision table, most specific rule first. The
// first matching rule wins; evaluation never falls through after a match.
func DefaultRules() []Rule {
	return []Rule{
		{Reason: ReasonOverride, Evaluate: overrideRule},
		{Reason: ReasonUpgrade, Evaluate: upgradeRule},
		{Reason: ReasonCriticalPosition, Evaluate: criticalPositionRule},
		{Reason: ReasonBaseline, Evaluate: baselineRule},
	}
}

// overrideRule honors an explicit algorithm override naming an enabled,
// admitted engine.
func overrideRule(c *candidates) (*Decision, bool) {
	id := strings.TrimSpace(c.req.AlgorithmOverride)
	if id == "" || !c.admitted[id] {
		return nil, false
	}
	return &Decision{Mode: ModeSingle, Engines: []string{id}}, true
}

// upgradeRule routes rich profiles to the highest-weight engine when the
// candidate meets its declared minimums. The baseline engine is never an
// upgrade; a pool topped by it is left to the baseline rule.
func upgradeRule(c *candidates) (*Decision, bool) {
	top := c.pool[0]
	if c.baseline != nil && top.ID == c.baseline.ID {
		return nil, false
	}
	if !top.Satisfies(c.req) {
		return nil, false
	}
	return &Decision{Mode: ModeFallbackChain, Engines: c.chain(top)}, true
}

// criticalPositionRule invokes the N highest-weight eligible engines
// concurrently when any job title is on the critical-position list.
func criticalPositionRule(c *candidates) (*Decision, bool) {
	if !c.cfg.isCritical(c.req) {
		return nil, false
	}

	n := c.cfg.ConsensusSize
	if n < 2 {
		n = 2
	}
	var chosen []*registry.Descriptor
	for _, d := range c.pool {
		if d.Satisfies(c.req) {
			chosen = append(chosen, d)
			if len(chosen) == n {
				break
			}
		}
	}
	if len(chosen) < 2 {
		return nil, false
	}

	dec := &Decision{Mode: ModeHybridConsensus, Tolerance: c.cfg.ConsensusTolerance}
	inDecision := make(map[string]bool, len(chosen))
	for _, d := range chosen {
		dec.Engines = append(dec.Engines, d.ID)
		inDecision[d.ID] = true
	}
	for _, d := range chosen {
		for _, fb := range d.Fallbacks {
			if c.admitted[fb] && !inDecision[fb] {
				dec.Fallbacks = append(dec.Fallbacks, fb)
				inDecision[fb] = true
			}
		}
	}
	return dec, true
}

// baselineRule routes everything else to the baseline engine and its
// fallbacks. When the baseline itself is excluded the admitted engine with
// the lowest requirements stands in for it.
func baselineRule(c *candidates) (*Decision, bool) {
	primary := c.baseline
	if primary == nil || !c.admitted[primary.ID] {
		primary = registry.LowestRequirement(c.pool)
	}
	if primary == nil {
		return nil, false
	}
	return &Decision{Mode: ModeFallbackChain, Engines: c.chain(primary)}, true
}
