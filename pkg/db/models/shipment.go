package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// Shipment records the carrier-side result of shipping a closed box.
type Shipment struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BoxID              uuid.UUID            `gorm:"column:box_id;type:uuid;not null"`
	Carrier            enums.CarrierCode    `gorm:"column:carrier;type:carrier_code;not null"`
	ServiceCode        string               `gorm:"column:service_code;not null"`
	ServiceName        string               `gorm:"column:service_name;not null"`
	TrackingNumber     string               `gorm:"column:tracking_number;not null;uniqueIndex:idx_shipments_tracking_number"`
	LabelURL           *string              `gorm:"column:label_url"`
	DeclaredValueCents int                  `gorm:"column:declared_value_cents;not null;default:0"`
	QuotedCents        int                  `gorm:"column:quoted_cents;not null;default:0"`
	ChargedCents       int                  `gorm:"column:charged_cents;not null;default:0"`
	Status             enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null;default:'created'"`
	CancelledAt        *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
