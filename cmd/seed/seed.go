package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/shopspring/decimal"
)

type sampleStop struct {
	name     string
	lat, lng string
}

type sampleRoute struct {
	code, name string
	stops      []string
}

type sampleDriver struct {
	license, first, last, phone string
	route, bus                  string
}

var (
	sampleStops = []sampleStop{
		{name: "Soweto Depot", lat: "-26.267500", lng: "27.858600"},
		{name: "Joburg CBD", lat: "-26.204100", lng: "28.047300"},
		{name: "Maponya Mall", lat: "-26.260300", lng: "27.904100"},
	}

	sampleBuses = []domain.Bus{
		{RegistrationNumber: "SOW-001", Capacity: 60, IsActive: true},
		{RegistrationNumber: "SOW-002", Capacity: 55, IsActive: true},
	}

	// The first and last stop double as origin and destination.
	sampleRoutes = []sampleRoute{
		{code: "R1", name: "Soweto to CBD", stops: []string{"Soweto Depot", "Joburg CBD"}},
		{code: "R2", name: "Soweto to Maponya Mall", stops: []string{"Soweto Depot", "Maponya Mall"}},
	}

	sampleDrivers = []sampleDriver{
		{license: "DRV-001", first: "Thabo", last: "Mokoena", phone: "0710000001", route: "R1", bus: "SOW-001"},
		{license: "DRV-002", first: "Ayanda", last: "Dlamini", phone: "0710000002", route: "R2", bus: "SOW-002"},
	}
)

type seedStats struct {
	Stops, Buses, Routes, Drivers, Assignments, Trips, Feedback int
}

type seeder struct {
	repo domain.FleetRepository
	now  func() time.Time
}

// run upserts the sample fleet by natural key. Trips and feedback have no
// natural key, so they are only written when withTrips is set.
func (s *seeder) run(ctx context.Context, withTrips bool) (seedStats, error) {
	var stats seedStats

	stopIDs := make(map[string]int64, len(sampleStops))
	for _, st := range sampleStops {
		lat, err := decimal.NewFromString(st.lat)
		if err != nil {
			return stats, fmt.Errorf("parse latitude of %s: %w", st.name, err)
		}
		lng, err := decimal.NewFromString(st.lng)
		if err != nil {
			return stats, fmt.Errorf("parse longitude of %s: %w", st.name, err)
		}
		saved, err := s.repo.UpsertStop(ctx, domain.Stop{Name: st.name, Latitude: &lat, Longitude: &lng, IsActive: true})
		if err != nil {
			return stats, fmt.Errorf("upsert stop %s: %w", st.name, err)
		}
		stopIDs[st.name] = saved.ID
		stats.Stops++
	}

	busIDs := make(map[string]int64, len(sampleBuses))
	for _, b := range sampleBuses {
		saved, err := s.repo.UpsertBus(ctx, b)
		if err != nil {
			return stats, fmt.Errorf("upsert bus %s: %w", b.RegistrationNumber, err)
		}
		busIDs[b.RegistrationNumber] = saved.ID
		stats.Buses++
	}

	routeIDs := make(map[string]int64, len(sampleRoutes))
	for _, r := range sampleRoutes {
		ids := make([]int64, 0, len(r.stops))
		for _, name := range r.stops {
			ids = append(ids, stopIDs[name])
		}
		saved, err := s.repo.UpsertRoute(ctx, domain.Route{
			Code:              r.code,
			Name:              r.name,
			OriginStopID:      ids[0],
			DestinationStopID: ids[len(ids)-1],
			IsActive:          true,
		})
		if err != nil {
			return stats, fmt.Errorf("upsert route %s: %w", r.code, err)
		}
		if err := s.repo.SetRouteStops(ctx, saved.ID, ids); err != nil {
			return stats, fmt.Errorf("set stops of route %s: %w", r.code, err)
		}
		routeIDs[r.code] = saved.ID
		stats.Routes++
	}

	driverIDs := make(map[string]int64, len(sampleDrivers))
	for _, d := range sampleDrivers {
		saved, err := s.repo.UpsertDriver(ctx, domain.Driver{
			FirstName:     d.first,
			LastName:      d.last,
			PhoneNumber:   d.phone,
			LicenseNumber: d.license,
			IsActive:      true,
		})
		if err != nil {
			return stats, fmt.Errorf("upsert driver %s: %w", d.license, err)
		}
		driverIDs[d.license] = saved.ID
		stats.Drivers++

		if _, err := s.repo.AssignDriver(ctx, saved.ID, routeIDs[d.route], busIDs[d.bus]); err != nil {
			return stats, fmt.Errorf("assign driver %s: %w", d.license, err)
		}
		stats.Assignments++
	}
	slog.Debug("Fleet upserted", "stops", stats.Stops, "buses", stats.Buses, "routes", stats.Routes)

	if !withTrips {
		return stats, nil
	}

	now := s.now().UTC().Truncate(time.Second)
	trips := []struct {
		driver        sampleDriver
		depart, drive time.Duration
		rating        int
		comment, name string
	}{
		{sampleDrivers[0], 0, 45 * time.Minute, 5, "On time and clean bus", "Nomsa"},
		{sampleDrivers[1], time.Hour, 30 * time.Minute, 3, "Trip was fine but a bit crowded", "Kabelo"},
	}
	for _, tr := range trips {
		departure := now.Add(tr.depart)
		arrival := departure.Add(tr.drive)
		routeID := routeIDs[tr.driver.route]

		trip, err := s.repo.CreateTrip(ctx, domain.Trip{
			RouteID:       routeID,
			BusID:         busIDs[tr.driver.bus],
			DriverID:      driverIDs[tr.driver.license],
			DepartureTime: departure,
			ArrivalTime:   &arrival,
		})
		if err != nil {
			return stats, fmt.Errorf("create trip on %s: %w", tr.driver.route, err)
		}
		stats.Trips++

		if _, err := s.repo.CreateFeedback(ctx, domain.Feedback{
			RouteID:       &routeID,
			TripID:        &trip.ID,
			Rating:        tr.rating,
			Comment:       tr.comment,
			PassengerName: tr.name,
		}); err != nil {
			return stats, fmt.Errorf("create feedback for trip %d: %w", trip.ID, err)
		}
		stats.Feedback++
	}

	return stats, nil
}
