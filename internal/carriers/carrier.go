package carriers

import (
	"context"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
	"github.com/cargoloop/forwarder-backend/pkg/types"
)

// Rate is a single carrier service quote, normalized across adapters.
type Rate struct {
	Carrier            enums.CarrierCode
	ServiceCode        string
	ServiceName        string
	TotalCents         int
	Currency           string
	EstimatedDays      int
	TrackingAvailable  bool
	InsuranceAvailable bool
	CustomerTotalCents int
}

// Dimensions are package dimensions in centimeters.
type Dimensions struct {
	LengthCM float64
	WidthCM  float64
	HeightCM float64
}

// ShipmentRequest carries everything an adapter needs to buy a label.
type ShipmentRequest struct {
	BoxID              string
	ServiceCode        string
	WeightGrams        int
	Dimensions         Dimensions
	Origin             types.Address
	Destination        types.Address
	DeclaredValueCents int
	Insurance          bool
	Reference          string
}

// ShipmentResponse is the normalized result of createShipment. Failures are
// carried in the response, never as a raw transport error.
type ShipmentResponse struct {
	Success        bool
	TrackingNumber string
	LabelURL       string
	Error          string
}

// TrackingEvent is one scan/checkpoint in a shipment's history.
type TrackingEvent struct {
	Timestamp   string
	Status      string
	Location    string
	Description string
}

// TrackingResponse is the normalized tracking state. Unparseable carrier
// output degrades to StatusUnknown with an empty event list.
// EstimatedDelivery stays empty when the carrier does not report one.
type TrackingResponse struct {
	TrackingNumber    string
	Status            string
	EstimatedDelivery string
	Events            []TrackingEvent
}

const (
	StatusUnknown   = "Unknown"
	StatusInTransit = "InTransit"
	StatusDelivered = "Delivered"
	StatusCreated   = "Created"
	StatusCancelled = "Cancelled"
)

// RateQuery are the inputs for a rate lookup.
type RateQuery struct {
	WeightGrams  int
	OriginPostal string
	DestPostal   string
	DestCountry  string
	ServiceType  string
}

// Carrier is the uniform contract each carrier adapter implements.
//
// GetRates returns an empty slice on any failure so rate-shopping can
// aggregate partial results. CreateShipment normalizes failures into the
// response object. TrackShipment returns an error only for retryable
// transport failures; anything else degrades to StatusUnknown.
// CancelShipment is idempotent.
type Carrier interface {
	Code() enums.CarrierCode
	Authenticate(ctx context.Context) bool
	GetRates(ctx context.Context, query RateQuery) []Rate
	CreateShipment(ctx context.Context, req ShipmentRequest) ShipmentResponse
	TrackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error)
	CancelShipment(ctx context.Context, trackingNumber string) (bool, error)
}
