package domain

import (
	"context"
	"time"
)

// VehiclePosition is the latest known location of one bus. Only the most
// recent report per bus is kept.
type VehiclePosition struct {
	BusID      string    `json:"busId"`
	RouteID    string    `json:"routeId,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    float64   `json:"heading"`
	NextStopID string    `json:"nextStopId,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PositionStore keeps the latest position per bus with a bounded lifetime.
type PositionStore interface {
	Save(ctx context.Context, pos VehiclePosition, ttl time.Duration) error
	Get(ctx context.Context, busID string) (*VehiclePosition, error)
	List(ctx context.Context) ([]VehiclePosition, error)
}
