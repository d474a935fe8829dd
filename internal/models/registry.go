package models

import (
	"fmt"
	"sync"

	"github.com/wonny/screener/internal/contracts"
)

// Registry is the lookup table of scoring models keyed by id
// 등록 순서 = 모델 선택 순서
// ⭐ SSOT: 모델 조회는 Registry를 통해서만
type Registry struct {
	mu     sync.RWMutex
	models map[string]contracts.ScoringModel
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]contracts.ScoringModel)}
}

// Register adds a model; ids must be unique
func (r *Registry) Register(m contracts.ScoringModel) error {
	if m == nil || m.ID() == "" {
		return fmt.Errorf("register model: empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.ID()]; exists {
		return fmt.Errorf("register model: duplicate id %q", m.ID())
	}
	r.models[m.ID()] = m
	r.order = append(r.order, m.ID())
	return nil
}

// Get returns the model registered under id
func (r *Registry) Get(id string) (contracts.ScoringModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	return m, ok
}

// List returns all models in registration order
func (r *Registry) List() []contracts.ScoringModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.ScoringModel, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Len returns the number of registered models
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Select resolves ids (or every model when ids is empty) and applies the category filter
// 알 수 없는 id, 필터 결과 없음 = 설정 오류
func (r *Registry) Select(ids []string, category contracts.Category) ([]contracts.ScoringModel, error) {
	var candidates []contracts.ScoringModel
	if len(ids) == 0 {
		candidates = r.List()
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, ok := r.Get(id)
			if !ok {
				return nil, contracts.NewConfigError("model_ids", "unknown model %q", id)
			}
			candidates = append(candidates, m)
		}
	}

	if category != "" && category != contracts.CategoryTechnical && category != contracts.CategoryFundamental {
		return nil, contracts.NewConfigError("category", "unknown category %q", category)
	}

	selected := make([]contracts.ScoringModel, 0, len(candidates))
	for _, m := range candidates {
		if category == "" || m.Category() == category {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		if category == "" {
			return nil, contracts.NewConfigError("model_ids", "no models selected")
		}
		return nil, contracts.NewConfigError("category", "no models match category %q", category)
	}
	return selected, nil
}

// Ready reports whether history carries every fundamental field the model requires
// 필수 필드가 없는 경우에만 모델/종목 쌍 제외
func Ready(m contracts.ScoringModel, h *contracts.History) bool {
	required := m.RequiredFields()
	if len(required) == 0 {
		return true
	}
	return h.LatestFundamentals().Has(required...)
}
