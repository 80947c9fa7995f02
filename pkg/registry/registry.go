package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Registry is the catalogue of scoring engines known to the process.
//
// Descriptors are registered once at startup and never removed. After
// startup the only mutations are SetEnabled, SetWeight and SetCacheTTL. They
// are atomic stores on the descriptor, so readers on the hot path only take
// the read lock for the map lookup.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Descriptor
	order   []string
	logger  *slog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		engines: make(map[string]*Descriptor),
		logger:  slog.Default().With("component", "registry"),
	}
}

// Load registers every definition and validates the result. All problems are
// reported together so a broken configuration can be fixed in one pass.
func Load(defs []Definition) (*Registry, error) {
	r := New()
	var errs []error
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds an engine descriptor. It fails fast with a ConfigError on an
// empty or duplicate id, a non-positive timeout, a negative weight, an
// out-of-range questionnaire minimum, or a fallback that references the
// engine itself.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return &ConfigError{Field: "id", Reason: "must not be empty"}
	}
	if def.Timeout <= 0 {
		return &ConfigError{ID: def.ID, Field: "timeout", Reason: "must be positive"}
	}
	if def.Weight < 0 {
		return &ConfigError{ID: def.ID, Field: "weight", Reason: "must not be negative"}
	}
	if def.CacheTTL < 0 {
		return &ConfigError{ID: def.ID, Field: "cache_ttl", Reason: "must not be negative"}
	}
	if def.MinSkills < 0 {
		return &ConfigError{ID: def.ID, Field: "min_skills", Reason: "must not be negative"}
	}
	if def.MinQuestionnaire < 0 || def.MinQuestionnaire > 1 {
		return &ConfigError{ID: def.ID, Field: "min_questionnaire", Reason: "must be between 0 and 1"}
	}

	seen := make(map[string]bool, len(def.Fallbacks))
	for _, fb := range def.Fallbacks {
		if fb == def.ID {
			return &ConfigError{ID: def.ID, Field: "fallbacks", Reason: "engine cannot fall back to itself"}
		}
		if seen[fb] {
			return &ConfigError{ID: def.ID, Field: "fallbacks", Reason: fmt.Sprintf("duplicate fallback %q", fb)}
		}
		seen[fb] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[def.ID]; exists {
		return &ConfigError{ID: def.ID, Field: "id", Reason: "duplicate engine id"}
	}

	r.engines[def.ID] = newDescriptor(def)
	r.order = append(r.order, def.ID)

	r.logger.Debug("engine registered",
		"engine", def.ID,
		"enabled", def.Enabled,
		"weight", def.Weight,
		"timeout", def.Timeout,
		"fallbacks", def.Fallbacks,
	)
	return nil
}

// Validate checks cross-descriptor consistency once every engine is
// registered: the registry is not empty, every fallback target resolves to a
// registered id, and at most one engine is marked as baseline.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.engines) == 0 {
		return &ConfigError{Field: "engines", Reason: "at least one engine must be registered"}
	}

	var errs []error
	var baselines []string
	for _, id := range r.order {
		d := r.engines[id]
		for _, fb := range d.Fallbacks {
			if _, ok := r.engines[fb]; !ok {
				errs = append(errs, &ConfigError{
					ID:     id,
					Field:  "fallbacks",
					Reason: fmt.Sprintf("fallback target %q is not registered", fb),
				})
			}
		}
		if d.Baseline {
			baselines = append(baselines, id)
		}
	}
	if len(baselines) > 1 {
		errs = append(errs, &ConfigError{
			Field:  "baseline",
			Reason: fmt.Sprintf("only one engine may be marked baseline, got %v", baselines),
		})
	}
	return errors.Join(errs...)
}

// Resolve returns the descriptor for id. It fails with ErrNotFound if the
// engine is unknown or currently disabled.
func (r *Registry) Resolve(id string) (*Descriptor, error) {
	d, ok := r.Lookup(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if !d.Enabled() {
		return nil, &NotFoundError{ID: id, Disabled: true}
	}
	return d, nil
}

// Lookup returns the descriptor for id whether or not it is enabled.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.engines[id]
	return d, ok
}

// ListEnabled returns the enabled engines ordered by descending weight.
// Ties are broken by id so the order is deterministic.
func (r *Registry) ListEnabled() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.engines))
	for _, d := range r.engines {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	r.mu.RUnlock()

	SortByWeight(out)
	return out
}

// All returns every registered engine ordered by id.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.engines))
	for _, d := range r.engines {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Baseline returns the baseline engine: the one marked as baseline, or else
// the registered engine with the lowest declared requirements.
func (r *Registry) Baseline() (*Descriptor, error) {
	all := r.All()
	if len(all) == 0 {
		return nil, &NotFoundError{ID: "baseline"}
	}
	for _, d := range all {
		if d.Baseline {
			return d, nil
		}
	}
	return LowestRequirement(all), nil
}

// SetEnabled flips the enabled flag of an engine.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	d, ok := r.Lookup(id)
	if !ok {
		return &NotFoundError{ID: id}
	}
	if d.enabled.Swap(enabled) != enabled {
		r.logger.Info("engine enabled flag changed", "engine", id, "enabled", enabled)
	}
	return nil
}

// SetWeight updates the relative weight of an engine.
func (r *Registry) SetWeight(id string, weight float64) error {
	if weight < 0 {
		return &ConfigError{ID: id, Field: "weight", Reason: "must not be negative"}
	}
	d, ok := r.Lookup(id)
	if !ok {
		return &NotFoundError{ID: id}
	}
	old := d.Weight()
	d.weight.Store(math.Float64bits(weight))
	if old != weight {
		r.logger.Info("engine weight changed", "engine", id, "old_weight", old, "new_weight", weight)
	}
	return nil
}

// SetCacheTTL updates how long an engine's results stay cached. Entries
// already stored keep their original expiry.
func (r *Registry) SetCacheTTL(id string, ttl time.Duration) error {
	if ttl < 0 {
		return &ConfigError{ID: id, Field: "cache_ttl", Reason: "must not be negative"}
	}
	d, ok := r.Lookup(id)
	if !ok {
		return &NotFoundError{ID: id}
	}
	if old := d.CacheTTL(); old != ttl {
		d.cacheTTL.Store(int64(ttl))
		r.logger.Info("engine cache ttl changed", "engine", id, "old_ttl", old, "new_ttl", ttl)
	}
	return nil
}

// Snapshots returns a copy of every descriptor's current state, ordered by id.
func (r *Registry) Snapshots() []Snapshot {
	all := r.All()
	out := make([]Snapshot, len(all))
	for i, d := range all {
		out[i] = d.Snapshot()
	}
	return out
}

// SortByWeight orders descriptors by descending weight, then by id.
func SortByWeight(ds []*Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		wi, wj := ds[i].Weight(), ds[j].Weight()
		if wi != wj {
			return wi > wj
		}
		return ds[i].ID < ds[j].ID
	})
}

// LowestRequirement returns the descriptor demanding the least input, or nil
// for an empty slice.
func LowestRequirement(ds []*Descriptor) *Descriptor {
	var best *Descriptor
	for _, d := range ds {
		if best == nil || requirementLess(d, best) {
			best = d
		}
	}
	return best
}
