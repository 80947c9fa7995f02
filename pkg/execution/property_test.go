package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"talentgrid-hq/conductor/internal/enginetest"
	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
	"talentgrid-hq/conductor/pkg/selection"
)

var allEngines = []string{"advanced", "semantic", "baseline"}

func subset(mask int) []string {
	var ids []string
	for i, id := range allEngines {
		if mask&(1<<i) != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// TestNoHiddenCalls verifies the executor only ever invokes engines the
// decision names, whatever fails along the way.
// Property: called(engines) ⊆ decision.Engines ∪ decision.Fallbacks
func TestNoHiddenCalls(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only decided engines are called", prop.ForAll(
		func(engineMask, fallbackMask, failMask int, consensus bool) bool {
			ids := subset(engineMask)
			if len(ids) == 0 {
				return true
			}
			f := newFixture(t)
			for i, id := range allEngines {
				if failMask&(1<<i) != 0 {
					f.mocks[id].SetError(errors.New("boom"))
				}
			}

			dec := chain(ids...)
			if consensus && len(ids) >= 2 {
				var fallbacks []string
				for _, id := range subset(fallbackMask) {
					if !contains(ids, id) {
						fallbacks = append(fallbacks, id)
					}
				}
				dec = hybrid(10, fallbacks, ids...)
			}

			res, err := f.exec.Execute(context.Background(), testRequest("req"), dec)
			for id, m := range f.mocks {
				if m.CallCount() > 1 {
					return false
				}
				if m.CallCount() > 0 && !dec.Allows(id) {
					return false
				}
			}
			if err != nil {
				return errors.Is(err, ErrAllEnginesFailed)
			}
			for _, id := range res.Engines {
				if !dec.Allows(id) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 7),
		gen.IntRange(0, 7),
		gen.IntRange(0, 7),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TestConsensusWithinInputs verifies the combined score is a weighted mean.
// Property: min(scores) <= combined <= max(scores), and equal weights give
// the arithmetic mean.
func TestConsensusWithinInputs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("combined score lies between the inputs", prop.ForAll(
		func(a, b, wa, wb float64) bool {
			reg, err := registry.Load([]registry.Definition{
				{ID: "left", Enabled: true, Weight: wa, Timeout: time.Second, Baseline: true},
				{ID: "right", Enabled: true, Weight: wb, Timeout: time.Second},
			})
			if err != nil {
				return false
			}
			exec := New(reg, engines.Set{
				"left":  enginetest.NewMockEngine("left", a),
				"right": enginetest.NewMockEngine("right", b),
			}, nil, nil)

			dec := &selection.Decision{Mode: selection.ModeHybridConsensus, Engines: []string{"left", "right"}, Tolerance: 100}
			res, err := exec.Execute(context.Background(), testRequest("req"), dec)
			if err != nil {
				return false
			}

			const eps = 1e-9
			lo, hi := math.Min(a, b), math.Max(a, b)
			if res.Score < lo-eps || res.Score > hi+eps {
				return false
			}
			if wa == wb && math.Abs(res.Score-(a+b)/2) > eps {
				return false
			}
			return !res.LowConfidence
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.OneConstOf(0.0, 0.25, 0.5, 1.0),
		gen.OneConstOf(0.0, 0.25, 0.5, 1.0),
	))

	properties.TestingRun(t)
}
