package outbox

import (
	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// BoxStatusPayload is the event data shared by box lifecycle events.
type BoxStatusPayload struct {
	BoxID      uuid.UUID       `json:"boxId"`
	CustomerID uuid.UUID       `json:"customerId"`
	FromStatus enums.BoxStatus `json:"fromStatus"`
	ToStatus   enums.BoxStatus `json:"toStatus"`
	Reason     string          `json:"reason,omitempty"`
}

// BoxClosedPayload records the fee snapshot frozen when a box is closed.
type BoxClosedPayload struct {
	BoxID                 uuid.UUID `json:"boxId"`
	CustomerID            uuid.UUID `json:"customerId"`
	PackageCount          int       `json:"packageCount"`
	WeightGrams           int       `json:"weightGrams"`
	ConsolidationFeeCents int       `json:"consolidationFeeCents"`
	StorageFeeCents       int       `json:"storageFeeCents"`
}

// ShipmentPayload is the event data for shipment lifecycle events.
type ShipmentPayload struct {
	ShipmentID     uuid.UUID         `json:"shipmentId"`
	BoxID          uuid.UUID         `json:"boxId"`
	Carrier        enums.CarrierCode `json:"carrier"`
	ServiceCode    string            `json:"serviceCode"`
	TrackingNumber string            `json:"trackingNumber"`
	QuotedCents    int               `json:"quotedCents,omitempty"`
}
