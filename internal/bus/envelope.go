package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angora-org/angora/internal/stringutil"
)

// Envelope is the fixed-shape message carried on the bus. It is immutable
// once published. The routing key is a delivery parameter, not part of the
// wire payload.
type Envelope struct {
	// Exchange is the bus routing namespace.
	Exchange string `json:"exchange"`
	// Queue is the logical destination name (informational).
	Queue string `json:"queue"`
	// Message is the trigger or message label, the routing semantic.
	Message string `json:"message"`
	// TimeStamp is an optional ISO-8601 string. Unset stamps are omitted
	// from the wire form; readers treat a missing or null stamp as unset.
	TimeStamp string `json:"time_stamp,omitempty"`
	// Data is an arbitrary JSON-serializable payload.
	Data any `json:"data"`
}

// NewEnvelope builds an envelope stamped with the current time.
func NewEnvelope(exchange, queue, message string, data any) *Envelope {
	return &Envelope{
		Exchange:  exchange,
		Queue:     queue,
		Message:   message,
		TimeStamp: stringutil.FormatTime(time.Now()),
		Data:      data,
	}
}

// Marshal renders the envelope as its JSON wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return body, nil
}

// UnmarshalEnvelope parses the JSON wire form.
func UnmarshalEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// DataMap returns the payload as a string-keyed map when it is one.
func (e *Envelope) DataMap() (map[string]any, bool) {
	m, ok := e.Data.(map[string]any)
	return m, ok
}
