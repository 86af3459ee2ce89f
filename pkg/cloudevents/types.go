package cloudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SpecVersion is the CloudEvents version produced by this package
const SpecVersion = "1.0"

// SourceStockLedger is the source attribute of every event the ledger relays
const SourceStockLedger = "/wms/stock-ledger-service"

// WMSCloudEvent represents a CloudEvents v1.0 compliant event for WMS
type WMSCloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`

	// WMS extensions
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WarehouseID   string `json:"wmswarehouseid,omitempty"`
	Sequence      uint64 `json:"wmssequence,omitempty"`
}

// DecodeData unmarshals the event data into v
func (e *WMSCloudEvent) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("cloudevent %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, v)
}

// Validate checks the attributes CloudEvents requires
func (e *WMSCloudEvent) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	case e.ID == "":
		return fmt.Errorf("cloudevent id is required")
	case e.Type == "":
		return fmt.Errorf("cloudevent type is required")
	case e.Source == "":
		return fmt.Errorf("cloudevent source is required")
	}
	return nil
}

// EventFactory creates CloudEvents for a single source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent wraps data in a new event. The id defaults to a random uuid when empty.
func (f *EventFactory) CreateEvent(ctx context.Context, id, eventType, subject string, at time.Time, data interface{}) (*WMSCloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	if id == "" {
		id = uuid.New().String()
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return &WMSCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              id,
		Time:            at,
		DataContentType: "application/json",
		Data:            payload,
	}, nil
}
