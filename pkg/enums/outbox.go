package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateConsolidationBox OutboxAggregateType = "consolidation_box"
	AggregateShipment         OutboxAggregateType = "shipment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateConsolidationBox,
	AggregateShipment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBoxClosed          OutboxEventType = "box_closed"
	EventBoxCancelled       OutboxEventType = "box_cancelled"
	EventBoxStatusChanged   OutboxEventType = "box_status_changed"
	EventShipmentCreated    OutboxEventType = "shipment_created"
	EventShipmentCancelled  OutboxEventType = "shipment_cancelled"
	EventShipmentStatusSync OutboxEventType = "shipment_status_sync"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBoxClosed,
	EventBoxCancelled,
	EventBoxStatusChanged,
	EventShipmentCreated,
	EventShipmentCancelled,
	EventShipmentStatusSync,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason enum in Postgres.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	DLQReasonBadPayload   OutboxDLQErrorReason = "bad_payload"
	DLQReasonPublishError OutboxDLQErrorReason = "publish_error"
)

// IsValid reports whether the value matches the canonical DLQ reason enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case DLQReasonMaxAttempts, DLQReasonBadPayload, DLQReasonPublishError:
		return true
	}
	return false
}
