package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/shipping"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// PackageView is the API shape of a package inside a box.
type PackageView struct {
	ID          uuid.UUID           `json:"id"`
	Status      enums.PackageStatus `json:"status"`
	WeightGrams int                 `json:"weight_grams"`
	Description *string             `json:"description,omitempty"`
}

// BoxView is the API shape of a consolidation box.
type BoxView struct {
	ID                    uuid.UUID                `json:"id"`
	CustomerID            uuid.UUID                `json:"customer_id"`
	Type                  enums.ConsolidationType  `json:"type"`
	Status                enums.BoxStatus          `json:"status"`
	CurrentWeightGrams    int                      `json:"current_weight_grams"`
	MaxItemsAllowed       int                      `json:"max_items_allowed"`
	ConsolidationFeeCents int                      `json:"consolidation_fee_cents"`
	StorageFeeCents       int                      `json:"storage_fee_cents"`
	CustomInstructions    *string                  `json:"custom_instructions,omitempty"`
	ExtraProtection       []enums.ProtectionOption `json:"extra_protection,omitempty"`
	RemoveInvoice         bool                     `json:"remove_invoice"`
	BeforePhotos          []string                 `json:"before_photos,omitempty"`
	AfterPhotos           []string                 `json:"after_photos,omitempty"`
	TrackingNumber        *string                  `json:"tracking_number,omitempty"`
	OpenedAt              time.Time                `json:"opened_at"`
	ConsolidationDeadline *time.Time               `json:"consolidation_deadline,omitempty"`
	ShippingDeadline      *time.Time               `json:"shipping_deadline,omitempty"`
	ClosedAt              *time.Time               `json:"closed_at,omitempty"`
	Packages              []PackageView            `json:"packages"`
}

// BoxListView is one cursor page of boxes.
type BoxListView struct {
	Items      []BoxView `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func toBoxView(box *models.ConsolidationBox) BoxView {
	view := BoxView{
		ID:                    box.ID,
		CustomerID:            box.CustomerID,
		Type:                  box.Type,
		Status:                box.Status,
		CurrentWeightGrams:    box.CurrentWeightGrams,
		MaxItemsAllowed:       box.MaxItemsAllowed,
		ConsolidationFeeCents: box.ConsolidationFeeCents,
		StorageFeeCents:       box.StorageFeeCents,
		CustomInstructions:    box.CustomInstructions,
		ExtraProtection:       box.ExtraProtection,
		RemoveInvoice:         box.RemoveInvoice,
		BeforePhotos:          box.BeforePhotos,
		AfterPhotos:           box.AfterPhotos,
		TrackingNumber:        box.TrackingNumber,
		OpenedAt:              box.OpenedAt,
		ConsolidationDeadline: box.ConsolidationDeadline,
		ShippingDeadline:      box.ShippingDeadline,
		ClosedAt:              box.ClosedAt,
		Packages:              make([]PackageView, 0, len(box.Packages)),
	}
	for i := range box.Packages {
		pkg := &box.Packages[i]
		view.Packages = append(view.Packages, PackageView{
			ID:          pkg.ID,
			Status:      pkg.Status,
			WeightGrams: pkg.WeightGrams,
			Description: pkg.Description,
		})
	}
	return view
}

func toBoxListView(list *boxes.BoxList) BoxListView {
	view := BoxListView{
		Items:      make([]BoxView, 0, len(list.Items)),
		NextCursor: list.NextCursor,
	}
	for i := range list.Items {
		view.Items = append(view.Items, toBoxView(&list.Items[i]))
	}
	return view
}

// RateView is one carrier service quote.
type RateView struct {
	Carrier            enums.CarrierCode `json:"carrier"`
	ServiceCode        string            `json:"service_code"`
	ServiceName        string            `json:"service_name"`
	TotalCents         int               `json:"total_cents"`
	CustomerTotalCents int               `json:"customer_total_cents"`
	Currency           string            `json:"currency"`
	EstimatedDays      int               `json:"estimated_days,omitempty"`
	TrackingAvailable  bool              `json:"tracking_available"`
	InsuranceAvailable bool              `json:"insurance_available"`
}

// CarrierQuoteView is one carrier's slice of a rate-shopping response.
type CarrierQuoteView struct {
	Carrier   enums.CarrierCode `json:"carrier"`
	Available bool              `json:"available"`
	Message   string            `json:"message,omitempty"`
	Rates     []RateView        `json:"rates"`
}

// QuoteResultView aggregates rate shopping across carriers.
type QuoteResultView struct {
	Quotes []CarrierQuoteView `json:"quotes"`
}

func toQuoteResultView(result *shipping.QuoteResult) QuoteResultView {
	view := QuoteResultView{Quotes: make([]CarrierQuoteView, 0, len(result.Quotes))}
	for _, quote := range result.Quotes {
		quoteView := CarrierQuoteView{
			Carrier:   quote.Carrier,
			Available: quote.Available,
			Message:   quote.Message,
			Rates:     make([]RateView, 0, len(quote.Rates)),
		}
		for _, rate := range quote.Rates {
			quoteView.Rates = append(quoteView.Rates, RateView{
				Carrier:            rate.Carrier,
				ServiceCode:        rate.ServiceCode,
				ServiceName:        rate.ServiceName,
				TotalCents:         rate.TotalCents,
				CustomerTotalCents: rate.CustomerTotalCents,
				Currency:           rate.Currency,
				EstimatedDays:      rate.EstimatedDays,
				TrackingAvailable:  rate.TrackingAvailable,
				InsuranceAvailable: rate.InsuranceAvailable,
			})
		}
		view.Quotes = append(view.Quotes, quoteView)
	}
	return view
}

// ShipmentView is the API shape of a shipment.
type ShipmentView struct {
	ID                 uuid.UUID            `json:"id"`
	BoxID              uuid.UUID            `json:"box_id"`
	Carrier            enums.CarrierCode    `json:"carrier"`
	ServiceCode        string               `json:"service_code"`
	ServiceName        string               `json:"service_name"`
	TrackingNumber     string               `json:"tracking_number"`
	LabelURL           *string              `json:"label_url,omitempty"`
	DeclaredValueCents int                  `json:"declared_value_cents"`
	QuotedCents        int                  `json:"quoted_cents"`
	ChargedCents       int                  `json:"charged_cents"`
	Status             enums.ShipmentStatus `json:"status"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}

func toShipmentView(shipment *models.Shipment) ShipmentView {
	return ShipmentView{
		ID:                 shipment.ID,
		BoxID:              shipment.BoxID,
		Carrier:            shipment.Carrier,
		ServiceCode:        shipment.ServiceCode,
		ServiceName:        shipment.ServiceName,
		TrackingNumber:     shipment.TrackingNumber,
		LabelURL:           shipment.LabelURL,
		DeclaredValueCents: shipment.DeclaredValueCents,
		QuotedCents:        shipment.QuotedCents,
		ChargedCents:       shipment.ChargedCents,
		Status:             shipment.Status,
		CancelledAt:        shipment.CancelledAt,
		CreatedAt:          shipment.CreatedAt,
	}
}

// TrackingEventView is one tracking checkpoint.
type TrackingEventView struct {
	Timestamp   string `json:"timestamp,omitempty"`
	Status      string `json:"status"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// TrackingView pairs the shipment with live carrier tracking state.
type TrackingView struct {
	Shipment          ShipmentView        `json:"shipment"`
	Status            string              `json:"status"`
	EstimatedDelivery string              `json:"estimated_delivery,omitempty"`
	Events            []TrackingEventView `json:"events"`
}

func toTrackingView(info *shipping.TrackingInfo) TrackingView {
	view := TrackingView{
		Shipment:          toShipmentView(info.Shipment),
		Status:            info.Tracking.Status,
		EstimatedDelivery: info.Tracking.EstimatedDelivery,
		Events:            make([]TrackingEventView, 0, len(info.Tracking.Events)),
	}
	for _, event := range info.Tracking.Events {
		view.Events = append(view.Events, TrackingEventView{
			Timestamp:   event.Timestamp,
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
		})
	}
	return view
}
