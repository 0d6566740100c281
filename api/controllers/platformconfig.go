package controllers

import (
	"net/http"

	"github.com/cargoloop/forwarder-backend/api/responses"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
)

// ReloadPlatformConfig re-reads operational settings from the database on
// demand.
func ReloadPlatformConfig(provider *platformconfig.Provider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "platform config provider is not configured"))
			return
		}
		if err := provider.Reload(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "platform config reload failed"))
			return
		}
		logg.Info(r.Context(), "platform config reloaded")
		responses.WriteSuccess(w, map[string]any{
			"status":   "reloaded",
			"degraded": provider.Degraded(),
		})
	}
}
