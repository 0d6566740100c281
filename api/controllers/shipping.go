package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/api/responses"
	"github.com/cargoloop/forwarder-backend/api/validators"
	"github.com/cargoloop/forwarder-backend/internal/carriers"
	"github.com/cargoloop/forwarder-backend/internal/shipping"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/types"
)

type quoteRequest struct {
	WeightGrams  int    `json:"weight_grams" validate:"required,min=1"`
	OriginPostal string `json:"origin_postal,omitempty"`
	DestPostal   string `json:"dest_postal" validate:"required"`
	DestCountry  string `json:"dest_country,omitempty"`
	ServiceType  string `json:"service_type,omitempty"`
}

// QuoteRates fans a rate request out to every active carrier and returns the
// per-carrier quotes with customer totals applied.
func QuoteRates(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Quote(r.Context(), shipping.QuoteInput{
			WeightGrams:  req.WeightGrams,
			OriginPostal: req.OriginPostal,
			DestPostal:   req.DestPostal,
			DestCountry:  req.DestCountry,
			ServiceType:  req.ServiceType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toQuoteResultView(result))
	}
}

type dimensionsRequest struct {
	LengthCM float64 `json:"length_cm,omitempty"`
	WidthCM  float64 `json:"width_cm,omitempty"`
	HeightCM float64 `json:"height_cm,omitempty"`
}

type createShipmentRequest struct {
	BoxID              uuid.UUID         `json:"box_id" validate:"required"`
	Carrier            string            `json:"carrier" validate:"required"`
	ServiceCode        string            `json:"service_code" validate:"required"`
	ServiceName        string            `json:"service_name,omitempty"`
	Dimensions         dimensionsRequest `json:"dimensions,omitempty"`
	Origin             types.Address     `json:"origin,omitempty"`
	Destination        types.Address     `json:"destination" validate:"required"`
	DeclaredValueCents int               `json:"declared_value_cents,omitempty"`
	Insurance          bool              `json:"insurance,omitempty"`
	QuotedCents        int               `json:"quoted_cents" validate:"required,min=1"`
}

// CreateShipment buys a label for a pending box and moves it to shipped.
func CreateShipment(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		var req createShipmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		carrier, err := enums.ParseCarrierCode(req.Carrier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid carrier"))
			return
		}

		shipment, err := svc.CreateShipment(r.Context(), shipping.CreateShipmentInput{
			BoxID:       req.BoxID,
			Carrier:     carrier,
			ServiceCode: req.ServiceCode,
			ServiceName: req.ServiceName,
			Dimensions: carriers.Dimensions{
				LengthCM: req.Dimensions.LengthCM,
				WidthCM:  req.Dimensions.WidthCM,
				HeightCM: req.Dimensions.HeightCM,
			},
			Origin:             req.Origin,
			Destination:        req.Destination,
			DeclaredValueCents: req.DeclaredValueCents,
			Insurance:          req.Insurance,
			QuotedCents:        req.QuotedCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toShipmentView(shipment))
	}
}

// TrackShipment returns the stored shipment along with the carrier's latest
// tracking state.
func TrackShipment(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		trackingNumber := chi.URLParam(r, "trackingNumber")
		if trackingNumber == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required"))
			return
		}

		info, err := svc.Track(r.Context(), trackingNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTrackingView(info))
	}
}

// CancelShipment voids a shipment with its carrier.
func CancelShipment(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		trackingNumber := chi.URLParam(r, "trackingNumber")
		if trackingNumber == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required"))
			return
		}

		shipment, err := svc.Cancel(r.Context(), trackingNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toShipmentView(shipment))
	}
}
