package packages

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
)

// Repository is the package surface the box lifecycle consumes: weight reads
// and writes plus box membership. Nothing else about packages is queried here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetWeight(ctx context.Context, id uuid.UUID) (int, error)
	SetWeight(ctx context.Context, id uuid.UUID, grams int, recordedBy, notes string) error
	SetBoxMembership(ctx context.Context, id uuid.UUID, boxID *uuid.UUID) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Package, error)
	FindByBox(ctx context.Context, boxID uuid.UUID) ([]models.Package, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a package repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetWeight(ctx context.Context, id uuid.UUID) (int, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).Select("weight_grams").Where("id = ?", id).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
		}
		return 0, err
	}
	return pkg.WeightGrams, nil
}

func (r *repository) SetWeight(ctx context.Context, id uuid.UUID, grams int, recordedBy, notes string) error {
	if grams < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "weight cannot be negative")
	}
	updates := map[string]any{"weight_grams": grams}
	if recordedBy != "" {
		updates["weight_recorded_by"] = recordedBy
	}
	if notes != "" {
		updates["weight_notes"] = notes
	}
	result := r.db.WithContext(ctx).Model(&models.Package{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	return nil
}

func (r *repository) SetBoxMembership(ctx context.Context, id uuid.UUID, boxID *uuid.UUID) error {
	updates := map[string]any{"box_id": boxID}
	if boxID != nil {
		updates["status"] = enums.PackageStatusConsolidated
	} else {
		updates["status"] = enums.PackageStatusReceived
	}
	result := r.db.WithContext(ctx).Model(&models.Package{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	return nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Package, error) {
	if len(ids) == 0 {
		return []models.Package{}, nil
	}
	var rows []models.Package
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *repository) FindByBox(ctx context.Context, boxID uuid.UUID) ([]models.Package, error) {
	var rows []models.Package
	err := r.db.WithContext(ctx).Where("box_id = ?", boxID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
