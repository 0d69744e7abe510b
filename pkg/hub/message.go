// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Kind labels what an Envelope carries.
type Kind string

const (
	// KindReading is a stored metric reading.
	KindReading Kind = "reading"
	// KindAlert is a trigger event.
	KindAlert Kind = "alert"
	// KindHello is sent to each client when it connects.
	KindHello Kind = "hello"
)

// Envelope is the JSON frame written to live clients.
type Envelope struct {
	Kind   Kind      `json:"kind"`
	Metric string    `json:"metric,omitempty"`
	At     time.Time `json:"at"`
	Data   any       `json:"data"`
}

// Message is a pre-encoded frame queued for clients.
type Message struct {
	Data []byte
}

// NewEnvelope wraps data with the current time.
func NewEnvelope(kind Kind, metric string, data any) Envelope {
	return Envelope{Kind: kind, Metric: metric, At: time.Now().UTC(), Data: data}
}

// Encode marshals the envelope into a Message.
func (e Envelope) Encode() (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
