package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// Package is an inbound customer parcel held at the warehouse. Membership in
// a consolidation box is tracked through BoxID.
type Package struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	BoxID            *uuid.UUID          `gorm:"column:box_id;type:uuid"`
	Status           enums.PackageStatus `gorm:"column:status;type:package_status;not null;default:'expected'"`
	WeightGrams      int                 `gorm:"column:weight_grams;not null;default:0"`
	PriceCents       int                 `gorm:"column:price_cents;not null;default:0"`
	Description      *string             `gorm:"column:description"`
	WeightRecordedBy *string             `gorm:"column:weight_recorded_by"`
	WeightNotes      *string             `gorm:"column:weight_notes"`
	ReceivedAt       *time.Time          `gorm:"column:received_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
