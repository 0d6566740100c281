package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/api/responses"
	"github.com/cargoloop/forwarder-backend/api/validators"
	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/pagination"
)

type createBoxRequest struct {
	CustomerID         uuid.UUID   `json:"customer_id" validate:"required"`
	Type               string      `json:"type,omitempty"`
	InitialPackageIDs  []uuid.UUID `json:"initial_package_ids,omitempty"`
	CustomInstructions *string     `json:"custom_instructions,omitempty"`
	ExtraProtection    []string    `json:"extra_protection,omitempty"`
	RemoveInvoice      bool        `json:"remove_invoice,omitempty"`
}

// CreateBox opens a new consolidation box, optionally seeded with packages.
func CreateBox(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		var req createBoxRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := boxes.CreateBoxInput{
			CustomerID:        req.CustomerID,
			InitialPackageIDs: req.InitialPackageIDs,
			Options: boxes.BoxOptions{
				CustomInstructions: req.CustomInstructions,
				RemoveInvoice:      req.RemoveInvoice,
			},
		}
		if req.Type != "" {
			parsed, err := enums.ParseConsolidationType(req.Type)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid consolidation type"))
				return
			}
			input.Type = parsed
		}
		for _, raw := range req.ExtraProtection {
			parsed, err := enums.ParseProtectionOption(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid protection option"))
				return
			}
			input.Options.ExtraProtection = append(input.Options.ExtraProtection, parsed)
		}

		box, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toBoxView(box))
	}
}

// GetBox returns one box with its member packages.
func GetBox(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		box, err := svc.Get(r.Context(), boxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

// ListBoxes returns a cursor page of the customer's boxes.
func ListBoxes(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.List(r.Context(), customerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxListView(list))
	}
}

type addPackageRequest struct {
	PackageID   uuid.UUID `json:"package_id" validate:"required"`
	WeightGrams int       `json:"weight_grams" validate:"required,min=1"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
	WeightNotes string    `json:"weight_notes,omitempty"`
}

// AddPackage records a package into an open box along with its weighed-in
// weight.
func AddPackage(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addPackageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.AddPackage(r.Context(), boxes.AddPackageInput{
			BoxID:       boxID,
			PackageID:   req.PackageID,
			WeightGrams: req.WeightGrams,
			RecordedBy:  req.RecordedBy,
			WeightNotes: req.WeightNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

// RemovePackage takes a package back out of an open box.
func RemovePackage(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		packageID, err := validators.ParsePathUUID(chi.URLParam(r, "packageID"), "packageID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.RemovePackage(r.Context(), boxID, packageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

type appendPhotosRequest struct {
	Stage  string   `json:"stage" validate:"required,oneof=before after"`
	Photos []string `json:"photos" validate:"required,min=1"`
}

// AppendPhotos appends packing photos to the box's before or after sequence.
func AppendPhotos(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req appendPhotosRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.AppendPhotos(r.Context(), boxID, boxes.PhotoStage(req.Stage), req.Photos)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

// CloseBox freezes fees and moves the box to pending.
func CloseBox(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.Close(r.Context(), boxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

type updateBoxStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	TrackingCode string `json:"tracking_code,omitempty"`
}

// UpdateBoxStatus drives an explicit lifecycle transition.
func UpdateBoxStatus(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateBoxStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseBoxStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid box status"))
			return
		}

		box, err := svc.UpdateStatus(r.Context(), boxes.UpdateStatusInput{
			BoxID:        boxID,
			NextStatus:   status,
			TrackingCode: req.TrackingCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBoxView(box))
	}
}

// DeleteBox removes an open box and releases its packages.
func DeleteBox(svc boxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "box service unavailable"))
			return
		}
		boxID, err := validators.ParsePathUUID(chi.URLParam(r, "boxID"), "boxID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), boxID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
