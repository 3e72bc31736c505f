// Package ws is the websocket session fabric: named rooms, per-socket
// send queues, and the envelope protocol clients speak.
package ws

import "encoding/json"

// Envelope frames every message in both directions: a named event, a
// JSON payload, and an optional correlation id for request-reply events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// AckResult is the payload of an "ack" envelope.
type AckResult struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

const eventAck = "ack"

// encodeEvent marshals a payload into a framed envelope.
func encodeEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// encodeAck frames the reply to an envelope that carried an ackId.
func encodeAck(ackID string, res AckResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: eventAck, Data: data, AckID: ackID})
}
