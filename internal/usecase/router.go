package usecase

import (
	"fmt"

	"github.com/nutriplan/backend/internal/domain"
)

// QueryRouter selects adapters for a query from an explicit registry built
// at construction time.
type QueryRouter struct {
	adapters []domain.Adapter
	bySource map[domain.Source]domain.Adapter
	byScope  map[domain.Scope]domain.Adapter
}

// NewQueryRouter registers adapters in the given order. Registration order
// is the order results are reported in.
func NewQueryRouter(adapters ...domain.Adapter) (*QueryRouter, error) {
	r := &QueryRouter{
		bySource: make(map[domain.Source]domain.Adapter, len(adapters)),
		byScope:  make(map[domain.Scope]domain.Adapter, len(adapters)),
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, dup := r.bySource[a.Source()]; dup {
			return nil, fmt.Errorf("adapter for source %s registered twice", a.Source())
		}
		if a.Scope() == domain.ScopeAll {
			return nil, fmt.Errorf("adapter %s cannot claim the %q scope", a.Source(), domain.ScopeAll)
		}
		if other, dup := r.byScope[a.Scope()]; dup {
			return nil, fmt.Errorf("scope %s claimed by both %s and %s", a.Scope(), other.Source(), a.Source())
		}
		r.adapters = append(r.adapters, a)
		r.bySource[a.Source()] = a
		r.byScope[a.Scope()] = a
	}
	return r, nil
}

// Route returns the adapters a query of this kind and scope goes to.
//
// Barcode queries go to every barcode-capable adapter whatever the scope.
// ScopeAll selects every adapter with the kind's capability. A named scope
// selects its adapter, which must exist and support the kind.
func (r *QueryRouter) Route(kind domain.QueryKind, scope domain.Scope) ([]domain.Adapter, error) {
	want := domain.CapabilityFor(kind)

	if kind == domain.KindBarcode || scope == domain.ScopeAll || scope == "" {
		var selected []domain.Adapter
		for _, a := range r.adapters {
			if domain.HasCapability(a, want) {
				selected = append(selected, a)
			}
		}
		return selected, nil
	}

	if _, err := domain.ParseScope(string(scope)); err != nil {
		return nil, err
	}
	a, ok := r.byScope[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", domain.ErrUnknownScope, scope)
	}
	if !domain.HasCapability(a, want) {
		return nil, fmt.Errorf("%w: %s does not serve %s queries", domain.ErrUnknownScope, scope, kind)
	}
	return []domain.Adapter{a}, nil
}

// Adapter returns the adapter registered for a source
func (r *QueryRouter) Adapter(source domain.Source) (domain.Adapter, bool) {
	a, ok := r.bySource[source]
	return a, ok
}

// Adapters returns every registered adapter in registration order
func (r *QueryRouter) Adapters() []domain.Adapter {
	out := make([]domain.Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}
