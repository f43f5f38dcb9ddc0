package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Payload is an opaque outbound telemetry record: a uuid assigned at
// creation time, a kind, a device id, and an arbitrary JSON body.
type Payload struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	DeviceID  string         `json:"device_id"`
	Body      map[string]any `json:"body"`
}

// NewPayload builds a Payload with a freshly assigned id and the current
// timestamp.
func NewPayload(deviceID, kind string, body map[string]any) Payload {
	return Payload{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      kind,
		DeviceID:  deviceID,
		Body:      body,
	}
}
