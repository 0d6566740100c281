package boxes

import (
	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// BoxOptions are the customer-chosen extras captured at creation.
type BoxOptions struct {
	CustomInstructions *string
	ExtraProtection    []enums.ProtectionOption
	RemoveInvoice      bool
}

// CreateBoxInput carries everything needed to open a new box.
type CreateBoxInput struct {
	CustomerID        uuid.UUID
	Type              enums.ConsolidationType
	InitialPackageIDs []uuid.UUID
	Options           BoxOptions
}

// AddPackageInput records a package into an open box. The weight supplied
// here is the authoritative weighing event for the package.
type AddPackageInput struct {
	BoxID       uuid.UUID
	PackageID   uuid.UUID
	WeightGrams int
	RecordedBy  string
	WeightNotes string
}

// UpdateStatusInput drives an explicit lifecycle transition.
type UpdateStatusInput struct {
	BoxID        uuid.UUID
	NextStatus   enums.BoxStatus
	TrackingCode string
}

// PhotoStage selects which append-only photo sequence to extend.
type PhotoStage string

const (
	PhotoStageBefore PhotoStage = "before"
	PhotoStageAfter  PhotoStage = "after"
)

// BoxList is a cursor-paginated page of boxes.
type BoxList struct {
	Items      []models.ConsolidationBox
	NextCursor string
}
