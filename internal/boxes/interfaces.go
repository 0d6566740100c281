package boxes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/pagination"
)

// Repository defines persistence operations for consolidation boxes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, box *models.ConsolidationBox) (*models.ConsolidationBox, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*BoxList, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service defines the box lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateBoxInput) (*models.ConsolidationBox, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error)
	List(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*BoxList, error)
	AddPackage(ctx context.Context, input AddPackageInput) (*models.ConsolidationBox, error)
	RemovePackage(ctx context.Context, boxID, packageID uuid.UUID) (*models.ConsolidationBox, error)
	AppendPhotos(ctx context.Context, boxID uuid.UUID, stage PhotoStage, refs []string) (*models.ConsolidationBox, error)
	Close(ctx context.Context, boxID uuid.UUID) (*models.ConsolidationBox, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.ConsolidationBox, error)
	Delete(ctx context.Context, boxID uuid.UUID) error
}
