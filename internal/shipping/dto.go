package shipping

import (
	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/internal/carriers"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	"github.com/cargoloop/forwarder-backend/pkg/types"
)

// QuoteInput are the rate-shopping parameters fanned out to every active
// carrier.
type QuoteInput struct {
	WeightGrams  int
	OriginPostal string
	DestPostal   string
	DestCountry  string
	ServiceType  string
}

// CarrierQuote is one carrier's contribution to a rate-shopping response.
// An unavailable carrier still appears in the result with a message instead
// of failing the whole request.
type CarrierQuote struct {
	Carrier   enums.CarrierCode
	Available bool
	Message   string
	Rates     []carriers.Rate
}

// QuoteResult aggregates per-carrier quotes from one rate-shopping pass.
type QuoteResult struct {
	Quotes []CarrierQuote
}

// CreateShipmentInput selects the carrier and service to buy a label for a
// closed box.
type CreateShipmentInput struct {
	BoxID              uuid.UUID
	Carrier            enums.CarrierCode
	ServiceCode        string
	ServiceName        string
	Dimensions         carriers.Dimensions
	Origin             types.Address
	Destination        types.Address
	DeclaredValueCents int
	Insurance          bool
	QuotedCents        int
}

// TrackingInfo pairs the stored shipment with the carrier's normalized
// tracking response.
type TrackingInfo struct {
	Shipment *models.Shipment
	Tracking carriers.TrackingResponse
}
