package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// ConsolidationBox represents a customer's box moving through the
// consolidation lifecycle. Fee columns hold frozen snapshots once the box
// leaves OPEN.
type ConsolidationBox struct {
	ID                    uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID            uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null"`
	Type                  enums.ConsolidationType   `gorm:"column:type;type:consolidation_type;not null;default:'standard'"`
	Status                enums.BoxStatus           `gorm:"column:status;type:box_status;not null;default:'open'"`
	CurrentWeightGrams    int                       `gorm:"column:current_weight_grams;not null;default:0"`
	MaxItemsAllowed       int                       `gorm:"column:max_items_allowed;not null;default:20"`
	ConsolidationFeeCents int                       `gorm:"column:consolidation_fee_cents;not null;default:0"`
	StorageFeeCents       int                       `gorm:"column:storage_fee_cents;not null;default:0"`
	CustomInstructions    *string                   `gorm:"column:custom_instructions"`
	ExtraProtection       []enums.ProtectionOption  `gorm:"column:extra_protection;type:jsonb;serializer:json"`
	RemoveInvoice         bool                      `gorm:"column:remove_invoice;not null;default:false"`
	BeforePhotos          []string                  `gorm:"column:before_photos;type:jsonb;serializer:json"`
	AfterPhotos           []string                  `gorm:"column:after_photos;type:jsonb;serializer:json"`
	TrackingNumber        *string                   `gorm:"column:tracking_number"`
	OpenedAt              time.Time                 `gorm:"column:opened_at;autoCreateTime"`
	ConsolidationDeadline *time.Time                `gorm:"column:consolidation_deadline"`
	ShippingDeadline      *time.Time                `gorm:"column:shipping_deadline"`
	ClosedAt              *time.Time                `gorm:"column:closed_at"`
	Packages              []Package                 `gorm:"foreignKey:BoxID"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
