package carriers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/metrics"
)

const (
	uspsDefaultBaseURL       = "https://secure.shippingapis.com/ShippingAPI.dll"
	uspsBodyReadLimit  int64 = 64 * 1024
	uspsAuthErrorCode        = "80040B1A"
)

var errUSPSUserIDRequired = errors.New("usps user id is required")

// USPS talks to the USPS Web Tools XML APIs (RateV4, eVS, TrackV2,
// eVSCancel). Requests are form-encoded XML documents; responses are XML
// parsed into the shared carrier value objects.
type USPS struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	metrics    *metrics.CarrierMetrics
}

// USPSOption configures optional client behavior.
type USPSOption func(*USPS)

// WithUSPSHTTPClient overrides the default HTTP client.
func WithUSPSHTTPClient(client *http.Client) USPSOption {
	return func(c *USPS) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUSPSMetrics attaches carrier call metrics.
func WithUSPSMetrics(m *metrics.CarrierMetrics) USPSOption {
	return func(c *USPS) {
		c.metrics = m
	}
}

// NewUSPS builds the USPS adapter from injected credentials. The Web Tools
// user ID travels in every request document, so only the key is required.
func NewUSPS(creds config.CarrierCredentials, opts ...USPSOption) (*USPS, error) {
	userID := strings.TrimSpace(creds.APIKey)
	if userID == "" {
		return nil, errUSPSUserIDRequired
	}

	client := &USPS{
		userID:     userID,
		baseURL:    uspsDefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if trimmed := strings.TrimSpace(creds.APIURL); trimmed != "" {
		client.baseURL = trimmed
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return client, nil
}

// Code identifies the adapter.
func (c *USPS) Code() enums.CarrierCode {
	return enums.CarrierUSPS
}

// uspsServiceNames maps USPS rate CLASSIDs to customer-facing names.
var uspsServiceNames = map[string]string{
	"0":    "USPS First-Class Mail",
	"1":    "USPS Priority Mail",
	"3":    "USPS Priority Mail Express",
	"1058": "USPS Ground Advantage",
}

// uspsServiceDays maps USPS rate CLASSIDs to estimated transit days.
var uspsServiceDays = map[string]int{
	"0":    4,
	"1":    3,
	"3":    1,
	"1058": 5,
}

func uspsServiceName(classID, mailService string) string {
	if name, ok := uspsServiceNames[classID]; ok {
		return name
	}
	if trimmed := strings.TrimSpace(mailService); trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("USPS Service %s", classID)
}

func uspsTransitDays(classID string) int {
	if days, ok := uspsServiceDays[classID]; ok {
		return days
	}
	return 0
}

// First-Class Mail (CLASSID 0) cannot carry added insurance; the other
// retail classes can.
func uspsInsuranceAvailable(classID string) bool {
	return classID != "0"
}

type uspsError struct {
	XMLName     xml.Name `xml:"Error"`
	Number      string   `xml:"Number"`
	Description string   `xml:"Description"`
}

// call issues one Web Tools request: GET <base>?API=<api>&XML=<doc>.
func (c *USPS) call(ctx context.Context, api string, doc any) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "marshal usps request")
	}

	params := url.Values{}
	params.Set("API", api)
	params.Set("XML", string(body))
	endpoint := c.baseURL + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "build usps request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr(err, "execute usps request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "usps request failed")
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, uspsBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "read usps response")
	}

	// Web Tools reports failures as a 200 with an <Error> document.
	var apiErr uspsError
	if xml.Unmarshal(payload, &apiErr) == nil && apiErr.Number != "" {
		return nil, pkgerrors.New(pkgerrors.CodeCarrier, fmt.Sprintf("usps error %s: %s", apiErr.Number, apiErr.Description))
	}

	return payload, nil
}

// Authenticate issues a minimal rate lookup and reports whether the user ID
// was accepted. It never returns an error.
func (c *USPS) Authenticate(ctx context.Context) bool {
	req := c.rateRequest(RateQuery{WeightGrams: 100, OriginPostal: "10001", DestPostal: "90210"})
	_, err := c.call(ctx, "RateV4", req)
	if err == nil {
		return true
	}
	return !strings.Contains(err.Error(), uspsAuthErrorCode)
}

type uspsRateRequest struct {
	XMLName  xml.Name        `xml:"RateV4Request"`
	UserID   string          `xml:"USERID,attr"`
	Revision string          `xml:"Revision"`
	Package  uspsRatePackage `xml:"Package"`
}

type uspsRatePackage struct {
	ID             string `xml:"ID,attr"`
	Service        string `xml:"Service"`
	ZipOrigination string `xml:"ZipOrigination"`
	ZipDestination string `xml:"ZipDestination"`
	Pounds         int    `xml:"Pounds"`
	Ounces         string `xml:"Ounces"`
	Container      string `xml:"Container"`
	Machinable     string `xml:"Machinable"`
}

type uspsRateResponse struct {
	XMLName xml.Name `xml:"RateV4Response"`
	Package struct {
		Postage []struct {
			ClassID     string `xml:"CLASSID,attr"`
			MailService string `xml:"MailService"`
			Rate        string `xml:"Rate"`
		} `xml:"Postage"`
	} `xml:"Package"`
}

func (c *USPS) rateRequest(query RateQuery) uspsRateRequest {
	pounds, ounces := gramsToPoundsOunces(query.WeightGrams)
	service := "ALL"
	if trimmed := strings.TrimSpace(query.ServiceType); trimmed != "" {
		service = trimmed
	}
	return uspsRateRequest{
		UserID:   c.userID,
		Revision: "2",
		Package: uspsRatePackage{
			ID:             "1",
			Service:        service,
			ZipOrigination: query.OriginPostal,
			ZipDestination: query.DestPostal,
			Pounds:         pounds,
			Ounces:         ounces,
			Machinable:     "TRUE",
		},
	}
}

// GetRates shops USPS services for the lane. Any failure yields an empty
// slice so aggregation across carriers can proceed.
func (c *USPS) GetRates(ctx context.Context, query RateQuery) []Rate {
	started := time.Now()
	rates, err := c.getRates(ctx, query)
	c.observe("get_rates", started, err)
	if err != nil {
		return []Rate{}
	}
	return rates
}

func (c *USPS) getRates(ctx context.Context, query RateQuery) ([]Rate, error) {
	payload, err := c.call(ctx, "RateV4", c.rateRequest(query))
	if err != nil {
		return nil, err
	}

	var apiResp uspsRateResponse
	if err := xml.Unmarshal(payload, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "decode usps rate response")
	}

	rates := make([]Rate, 0, len(apiResp.Package.Postage))
	for _, postage := range apiResp.Package.Postage {
		cents, err := moneyToCents(postage.Rate)
		if err != nil {
			continue
		}
		rates = append(rates, Rate{
			Carrier:            enums.CarrierUSPS,
			ServiceCode:        postage.ClassID,
			ServiceName:        uspsServiceName(postage.ClassID, postage.MailService),
			TotalCents:         cents,
			Currency:           "USD",
			EstimatedDays:      uspsTransitDays(postage.ClassID),
			TrackingAvailable:  true,
			InsuranceAvailable: uspsInsuranceAvailable(postage.ClassID),
		})
	}
	return rates, nil
}

type uspsLabelRequest struct {
	XMLName       xml.Name `xml:"eVSRequest"`
	UserID        string   `xml:"USERID,attr"`
	Option        string   `xml:"Option"`
	FromName      string   `xml:"FromName"`
	FromAddress1  string   `xml:"FromAddress1"`
	FromAddress2  string   `xml:"FromAddress2"`
	FromCity      string   `xml:"FromCity"`
	FromState     string   `xml:"FromState"`
	FromZip5      string   `xml:"FromZip5"`
	ToName        string   `xml:"ToName"`
	ToAddress1    string   `xml:"ToAddress1"`
	ToAddress2    string   `xml:"ToAddress2"`
	ToCity        string   `xml:"ToCity"`
	ToState       string   `xml:"ToState"`
	ToZip5        string   `xml:"ToZip5"`
	WeightInOz    string   `xml:"WeightInOunces"`
	ServiceType   string   `xml:"ServiceType"`
	InsuredAmount string   `xml:"InsuredAmount,omitempty"`
	ImageType     string   `xml:"ImageType"`
	CustomerRefNo string   `xml:"CustomerRefNo"`
}

type uspsLabelResponse struct {
	XMLName       xml.Name `xml:"eVSResponse"`
	BarcodeNumber string   `xml:"BarcodeNumber"`
	LabelImage    string   `xml:"LabelImage"`
}

// CreateShipment buys an eVS label. Failures normalize into the response
// object, never a raw transport error.
func (c *USPS) CreateShipment(ctx context.Context, req ShipmentRequest) ShipmentResponse {
	started := time.Now()
	resp := c.createShipment(ctx, req)
	if resp.Success {
		c.observe("create_shipment", started, nil)
	} else {
		c.observe("create_shipment", started, errors.New(resp.Error))
	}
	return resp
}

func (c *USPS) createShipment(ctx context.Context, req ShipmentRequest) ShipmentResponse {
	// eVS puts the suite/apartment in Address1 and the street in Address2.
	doc := uspsLabelRequest{
		UserID:        c.userID,
		FromName:      req.Origin.Name,
		FromAddress1:  req.Origin.Street2,
		FromAddress2:  req.Origin.Street1,
		FromCity:      req.Origin.City,
		FromState:     req.Origin.State,
		FromZip5:      req.Origin.PostalCode,
		ToName:        req.Destination.Name,
		ToAddress1:    req.Destination.Street2,
		ToAddress2:    req.Destination.Street1,
		ToCity:        req.Destination.City,
		ToState:       req.Destination.State,
		ToZip5:        req.Destination.PostalCode,
		WeightInOz:    totalOunces(req.WeightGrams),
		ServiceType:   req.ServiceCode,
		ImageType:     "PDF",
		CustomerRefNo: req.Reference,
	}
	if req.Insurance && req.DeclaredValueCents > 0 {
		doc.InsuredAmount = centsToMoney(req.DeclaredValueCents)
	}

	payload, err := c.call(ctx, "eVS", doc)
	if err != nil {
		return ShipmentResponse{Success: false, Error: uspsFailureMessage(err)}
	}

	var apiResp uspsLabelResponse
	if err := xml.Unmarshal(payload, &apiResp); err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}
	if apiResp.BarcodeNumber == "" {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}

	labelURL := ""
	if apiResp.LabelImage != "" {
		labelURL = "data:application/pdf;base64," + apiResp.LabelImage
	}

	return ShipmentResponse{
		Success:        true,
		TrackingNumber: apiResp.BarcodeNumber,
		LabelURL:       labelURL,
	}
}

type uspsTrackRequest struct {
	XMLName xml.Name      `xml:"TrackFieldRequest"`
	UserID  string        `xml:"USERID,attr"`
	TrackID uspsTrackedID `xml:"TrackID"`
}

type uspsTrackedID struct {
	ID string `xml:"ID,attr"`
}

type uspsTrackResponse struct {
	XMLName   xml.Name `xml:"TrackResponse"`
	TrackInfo struct {
		ExpectedDeliveryDate  string `xml:"ExpectedDeliveryDate"`
		PredictedDeliveryDate string `xml:"PredictedDeliveryDate"`
		Summary               struct {
			Event        string `xml:"Event"`
			EventDate    string `xml:"EventDate"`
			EventTime    string `xml:"EventTime"`
			EventCity    string `xml:"EventCity"`
			EventState   string `xml:"EventState"`
			EventCountry string `xml:"EventCountry"`
		} `xml:"TrackSummary"`
		Details []struct {
			Event      string `xml:"Event"`
			EventDate  string `xml:"EventDate"`
			EventTime  string `xml:"EventTime"`
			EventCity  string `xml:"EventCity"`
			EventState string `xml:"EventState"`
		} `xml:"TrackDetail"`
	} `xml:"TrackInfo"`
}

// TrackShipment fetches tracking activity. Transport failures return a
// retryable error; unparseable payloads degrade to StatusUnknown.
func (c *USPS) TrackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	started := time.Now()
	resp, err := c.trackShipment(ctx, trackingNumber)
	c.observe("track_shipment", started, err)
	return resp, err
}

func (c *USPS) trackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	unknown := TrackingResponse{TrackingNumber: trackingNumber, Status: StatusUnknown, Events: []TrackingEvent{}}

	doc := uspsTrackRequest{UserID: c.userID, TrackID: uspsTrackedID{ID: trackingNumber}}
	payload, err := c.call(ctx, "TrackV2", doc)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return unknown, err
		}
		return unknown, nil
	}

	var apiResp uspsTrackResponse
	if err := xml.Unmarshal(payload, &apiResp); err != nil {
		return unknown, nil
	}

	events := []TrackingEvent{}
	summary := apiResp.TrackInfo.Summary
	if summary.Event != "" {
		events = append(events, TrackingEvent{
			Timestamp:   strings.TrimSpace(summary.EventDate + " " + summary.EventTime),
			Status:      uspsEventStatus(summary.Event),
			Location:    uspsLocation(summary.EventCity, summary.EventState),
			Description: summary.Event,
		})
	}
	for _, detail := range apiResp.TrackInfo.Details {
		events = append(events, TrackingEvent{
			Timestamp:   strings.TrimSpace(detail.EventDate + " " + detail.EventTime),
			Status:      uspsEventStatus(detail.Event),
			Location:    uspsLocation(detail.EventCity, detail.EventState),
			Description: detail.Event,
		})
	}

	if len(events) == 0 {
		return unknown, nil
	}
	estimatedDelivery := apiResp.TrackInfo.ExpectedDeliveryDate
	if estimatedDelivery == "" {
		estimatedDelivery = apiResp.TrackInfo.PredictedDeliveryDate
	}
	return TrackingResponse{
		TrackingNumber:    trackingNumber,
		Status:            events[0].Status,
		EstimatedDelivery: estimatedDelivery,
		Events:            events,
	}, nil
}

func uspsEventStatus(event string) string {
	lowered := strings.ToLower(event)
	switch {
	case strings.Contains(lowered, "delivered"):
		return StatusDelivered
	case strings.Contains(lowered, "transit"), strings.Contains(lowered, "departed"), strings.Contains(lowered, "arrived"), strings.Contains(lowered, "processed"):
		return StatusInTransit
	case strings.Contains(lowered, "accept"), strings.Contains(lowered, "pre-shipment"), strings.Contains(lowered, "label"):
		return StatusCreated
	default:
		return StatusUnknown
	}
}

func uspsLocation(city, state string) string {
	parts := []string{}
	if trimmed := strings.TrimSpace(city); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if trimmed := strings.TrimSpace(state); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, ", ")
}

type uspsCancelRequest struct {
	XMLName       xml.Name `xml:"eVSCancelRequest"`
	UserID        string   `xml:"USERID,attr"`
	BarcodeNumber string   `xml:"BarcodeNumber"`
}

type uspsCancelResponse struct {
	XMLName       xml.Name `xml:"eVSCancelResponse"`
	Status        string   `xml:"Status"`
	Reason        string   `xml:"Reason"`
	BarcodeNumber string   `xml:"BarcodeNumber"`
}

// CancelShipment cancels an eVS label. Cancelling twice, or cancelling a
// label USPS no longer knows about, counts as success so the call stays
// idempotent.
func (c *USPS) CancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	started := time.Now()
	ok, err := c.cancelShipment(ctx, trackingNumber)
	c.observe("cancel_shipment", started, err)
	return ok, err
}

func (c *USPS) cancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	doc := uspsCancelRequest{UserID: c.userID, BarcodeNumber: trackingNumber}
	payload, err := c.call(ctx, "eVSCancel", doc)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return false, err
		}
		message := strings.ToLower(err.Error())
		if strings.Contains(message, "already") || strings.Contains(message, "not found") {
			return true, nil
		}
		return false, err
	}

	var apiResp uspsCancelResponse
	if err := xml.Unmarshal(payload, &apiResp); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "decode usps cancel response")
	}

	status := strings.ToLower(apiResp.Status)
	if strings.Contains(status, "cancel") || strings.Contains(status, "not found") {
		return true, nil
	}
	reason := strings.ToLower(apiResp.Reason)
	if strings.Contains(reason, "already") {
		return true, nil
	}
	return false, pkgerrors.New(pkgerrors.CodeCarrier, fmt.Sprintf("usps cancel rejected: %s", apiResp.Reason))
}

func (c *USPS) observe(operation string, started time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveDuration(string(enums.CarrierUSPS), operation, time.Since(started))
	if err != nil {
		c.metrics.IncFailure(string(enums.CarrierUSPS), operation)
		return
	}
	c.metrics.IncSuccess(string(enums.CarrierUSPS), operation)
}

func uspsFailureMessage(err error) string {
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "address") {
		return "invalid address"
	}
	return "shipping provider unavailable"
}

// gramsToPoundsOunces converts grams to whole pounds and fractional ounces
// the way Web Tools expects them.
func gramsToPoundsOunces(grams int) (int, string) {
	if grams < 0 {
		grams = 0
	}
	totalOz := float64(grams) / 28.3495
	pounds := int(totalOz) / 16
	ounces := totalOz - float64(pounds*16)
	return pounds, fmt.Sprintf("%.1f", ounces)
}

func totalOunces(grams int) string {
	if grams < 0 {
		grams = 0
	}
	return fmt.Sprintf("%.1f", float64(grams)/28.3495)
}
