package carriers

import (
	"context"
	"fmt"

	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/metrics"
)

// Registry holds the configured carrier adapters keyed by code.
type Registry struct {
	adapters map[enums.CarrierCode]Carrier
	order    []enums.CarrierCode
}

// NewRegistry wraps an explicit adapter list, preserving order for
// deterministic rate aggregation.
func NewRegistry(adapters ...Carrier) *Registry {
	r := &Registry{adapters: make(map[enums.CarrierCode]Carrier, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		code := adapter.Code()
		if _, exists := r.adapters[code]; exists {
			continue
		}
		r.adapters[code] = adapter
		r.order = append(r.order, code)
	}
	return r
}

// BuildActive constructs adapters for every carrier flagged active in
// configuration. A carrier with unusable credentials is skipped with a
// warning rather than failing boot.
func BuildActive(ctx context.Context, cfg config.CarriersConfig, m *metrics.CarrierMetrics, logg *logger.Logger) *Registry {
	adapters := []Carrier{}

	if creds := cfg.UPS(); creds.IsActive {
		ups, err := NewUPS(creds, WithUPSMetrics(m))
		if err != nil {
			if logg != nil {
				logg.Warn(ctx, fmt.Sprintf("skipping ups adapter: %v", err))
			}
		} else {
			adapters = append(adapters, ups)
		}
	}

	if creds := cfg.USPS(); creds.IsActive {
		usps, err := NewUSPS(creds, WithUSPSMetrics(m))
		if err != nil {
			if logg != nil {
				logg.Warn(ctx, fmt.Sprintf("skipping usps adapter: %v", err))
			}
		} else {
			adapters = append(adapters, usps)
		}
	}

	return NewRegistry(adapters...)
}

// Get returns the adapter for the given code.
func (r *Registry) Get(code enums.CarrierCode) (Carrier, error) {
	if adapter, ok := r.adapters[code]; ok {
		return adapter, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("carrier %s is not configured", code))
}

// All returns the adapters in registration order.
func (r *Registry) All() []Carrier {
	out := make([]Carrier, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.adapters[code])
	}
	return out
}

// Codes returns the configured carrier codes in registration order.
func (r *Registry) Codes() []enums.CarrierCode {
	out := make([]enums.CarrierCode, len(r.order))
	copy(out, r.order)
	return out
}
