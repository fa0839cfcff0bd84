// Package registry implements the Model Registry (C2): a declarative,
// immutable-after-construction catalogue of model specs. Per spec.md §9
// ("Global mutable state... Replace with explicit components passed by
// construction"), the registry holds no mutable state of its own — it is a
// frozen slice plus read-only indexes built once at construction time.
package registry

import (
	"fmt"
	"sort"

	"github.com/dataparency-dev/delegatecore/internal/types"
)

// Registry is an immutable catalogue of ModelSpecs.
type Registry struct {
	models []types.ModelSpec
	byID   map[string]types.ModelSpec
}

// New constructs a Registry from a fixed list of model specs. It validates
// the invariant "at least one free model must exist per supported TaskKind"
// is the caller's responsibility to satisfy (spec.md §3) — New surfaces a
// violation as an error so misconfiguration is caught at construction, not
// mid-pipeline.
func New(models []types.ModelSpec) (*Registry, error) {
	byID := make(map[string]types.ModelSpec, len(models))
	frozen := make([]types.ModelSpec, len(models))
	copy(frozen, models)

	for _, m := range frozen {
		if _, dup := byID[m.ModelID]; dup {
			return nil, fmt.Errorf("registry: duplicate model_id %q", m.ModelID)
		}
		byID[m.ModelID] = m
	}

	r := &Registry{models: frozen, byID: byID}
	if err := r.checkFreeCoverage(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) checkFreeCoverage() error {
	kinds := []types.TaskKind{
		types.TaskCodeGeneration, types.TaskCodeReview, types.TaskDocumentParsing,
		types.TaskAgenticComplex, types.TaskAgenticSimple, types.TaskVisionLanguage,
		types.TaskDeepReasoning, types.TaskGeneral,
	}
	for _, k := range kinds {
		covered := false
		for _, m := range r.models {
			if m.IsFree && m.HasAffinity(k) {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("registry: no free model covers task kind %q", k)
		}
	}
	return nil
}

// All returns a copy of the registry's models, safe for callers to range
// over without risk of mutating registry state.
func (r *Registry) All() []types.ModelSpec {
	out := make([]types.ModelSpec, len(r.models))
	copy(out, r.models)
	return out
}

// Get looks up a model by id.
func (r *Registry) Get(modelID string) (types.ModelSpec, bool) {
	m, ok := r.byID[modelID]
	return m, ok
}

// Eligible returns models affine to kind, within maxInputTokens ceiling, and
// not excluded, sorted deterministically by (priority, model_id).
func (r *Registry) Eligible(kind types.TaskKind, maxInputTokens int, exclude map[string]struct{}) []types.ModelSpec {
	var out []types.ModelSpec
	for _, m := range r.models {
		if !m.HasAffinity(kind) {
			continue
		}
		if m.MaxTokens < maxInputTokens {
			continue
		}
		if _, excluded := exclude[m.ModelID]; excluded {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}
