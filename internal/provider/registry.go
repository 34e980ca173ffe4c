package provider

import (
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
)

// Registry selects the adapter for a payment rail via a lookup table.
// Rails without a registered adapter are treated as not configured.
type Registry struct {
	adapters map[types.ProviderType]Adapter
}

// NewRegistry creates a registry from the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[types.ProviderType]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for the given rail
func (r *Registry) Get(p types.ProviderType) (Adapter, error) {
	if err := p.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unknown payment provider").
			Mark(ierr.ErrValidation)
	}

	adapter, ok := r.adapters[p]
	if !ok {
		return nil, ierr.NewError("provider not registered").
			WithHint("This payment provider is not activated for your account").
			WithReportableDetails(map[string]any{
				"provider": p.String(),
			}).
			Mark(ierr.ErrConfiguration)
	}
	return adapter, nil
}

// Providers lists the registered rails
func (r *Registry) Providers() []types.ProviderType {
	out := make([]types.ProviderType, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
