package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBusCapacity is used when a bus is saved without a capacity.
const DefaultBusCapacity = 40

// --- Model types ---

type Stop struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Latitude  *decimal.Decimal `json:"latitude,omitempty"`
	Longitude *decimal.Decimal `json:"longitude,omitempty"`
	IsActive  bool             `json:"isActive"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type Bus struct {
	ID                 int64     `json:"id"`
	RegistrationNumber string    `json:"registrationNumber"`
	Capacity           int       `json:"capacity"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Route struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Code              string      `json:"code"`
	OriginStopID      int64       `json:"originStopId"`
	DestinationStopID int64       `json:"destinationStopId"`
	IsActive          bool        `json:"isActive"`
	Stops             []RouteStop `json:"stops,omitempty"`
}

type RouteStop struct {
	Order int  `json:"order"`
	Stop  Stop `json:"stop"`
}

type Driver struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	LicenseNumber string `json:"licenseNumber"`
	IsActive      bool   `json:"isActive"`
}

type DriverAssignment struct {
	ID         int64     `json:"id"`
	DriverID   int64     `json:"driverId"`
	RouteID    int64     `json:"routeId"`
	BusID      int64     `json:"busId"`
	AssignedAt time.Time `json:"assignedAt"`
	IsActive   bool      `json:"isActive"`
}

type Trip struct {
	ID            int64      `json:"id"`
	RouteID       int64      `json:"routeId"`
	BusID         int64      `json:"busId"`
	DriverID      int64      `json:"driverId"`
	DepartureTime time.Time  `json:"departureTime"`
	ArrivalTime   *time.Time `json:"arrivalTime,omitempty"`
}

type Feedback struct {
	ID            int64     `json:"id"`
	RouteID       *int64    `json:"routeId,omitempty"`
	TripID        *int64    `json:"tripId,omitempty"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	PassengerName string    `json:"passengerName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// --- Interfaces ---

// FleetRepository is the persistence boundary for fleet records. The
// broadcast core never reads or writes through it.
type FleetRepository interface {
	ListStops(ctx context.Context) ([]Stop, error)
	UpsertStop(ctx context.Context, stop Stop) (*Stop, error)

	ListBuses(ctx context.Context) ([]Bus, error)
	GetBusByRegistration(ctx context.Context, registration string) (*Bus, error)
	UpsertBus(ctx context.Context, bus Bus) (*Bus, error)

	ListRoutes(ctx context.Context) ([]Route, error)
	GetRouteByCode(ctx context.Context, code string) (*Route, error)
	UpsertRoute(ctx context.Context, route Route) (*Route, error)
	SetRouteStops(ctx context.Context, routeID int64, stopIDs []int64) error

	ListDrivers(ctx context.Context) ([]Driver, error)
	UpsertDriver(ctx context.Context, driver Driver) (*Driver, error)
	AssignDriver(ctx context.Context, driverID, routeID, busID int64) (*DriverAssignment, error)

	CreateTrip(ctx context.Context, trip Trip) (*Trip, error)
	GetTrip(ctx context.Context, tripID int64) (*Trip, error)

	CreateFeedback(ctx context.Context, feedback Feedback) (*Feedback, error)
	ListFeedbackForRoute(ctx context.Context, routeID int64) ([]Feedback, error)
}
