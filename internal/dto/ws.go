package dto

import (
	"encoding/json"
	"time"
)

// ClientMessage is what a live connection sends upstream.
type ClientMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol,omitempty"`
}

// Envelope is the typed server-to-client message, multiplexing signal pushes,
// price updates and control replies over one connection.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEnvelope(msgType string, data interface{}) Envelope {
	return Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Encode renders the envelope as a wire frame. Marshal errors cannot occur for
// the payload types used in this codebase, so a failure returns nil.
func (e Envelope) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}
