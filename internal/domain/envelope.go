package domain

import (
	"encoding/json"
	"time"
)

// Wire message types shared with the web and driver clients.
const (
	TypeBusLocationUpdate   = "BUS_LOCATION_UPDATE"
	TypeBusStatusChange     = "BUS_STATUS_CHANGE"
	TypeRouteStarted        = "ROUTE_STARTED"
	TypeRouteStopped        = "ROUTE_STOPPED"
	TypeConnectionAck       = "CONNECTION_ACK"
	TypeDriverAuthenticated = "DRIVER_AUTHENTICATED"
	TypeError               = "ERROR"
)

// Error codes carried in ERROR envelopes.
const (
	ErrorCodeDecode          = "DECODE_ERROR"
	ErrorCodeMessageTooLarge = "MESSAGE_TOO_LARGE"
	ErrorCodeRateLimited     = "RATE_LIMITED"
	ErrorCodeIdle            = "IDLE_WARNING"
)

// ConnectionAck is sent to a client once it has been accepted into its group.
type ConnectionAck struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Group     string `json:"group"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorEnvelope is sent only to the connection that caused the error.
type ErrorEnvelope struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// NextStop is the upcoming stop reported by a driver client.
type NextStop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ETA  int    `json:"eta"`
}

// BusLocationUpdate is the position report published by driver clients.
// The hub relays it untouched; only observers decode it.
type BusLocationUpdate struct {
	Type               string    `json:"type"`
	BusID              string    `json:"busId"`
	RouteID            string    `json:"routeId,omitempty"`
	Lat                *float64  `json:"lat"`
	Lng                *float64  `json:"lng"`
	Heading            float64   `json:"heading"`
	CurrentStopIndex   int       `json:"currentStopIndex"`
	ProgressToNextStop float64   `json:"progressToNextStop"`
	NextStop           *NextStop `json:"nextStop,omitempty"`
	Timestamp          int64     `json:"timestamp"`
}

// NewConnectionAck encodes the acknowledgement for a freshly accepted client.
func NewConnectionAck(id ConnectionID, group GroupID, now time.Time) []byte {
	data, _ := json.Marshal(ConnectionAck{
		Type:      TypeConnectionAck,
		ClientID:  id.String(),
		Group:     group.String(),
		Timestamp: now.UnixMilli(),
	})
	return data
}

// NewErrorEnvelope encodes an ERROR message for a single client.
func NewErrorEnvelope(code, message string, now time.Time) []byte {
	data, _ := json.Marshal(ErrorEnvelope{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		Timestamp: now.UnixMilli(),
	})
	return data
}
