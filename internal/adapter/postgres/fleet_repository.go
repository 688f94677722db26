package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const foreignKeyViolation = "23503"

// Column lists must match the Scan order of the matching scan function.
const (
	stopColumns   = `id, name, latitude::text, longitude::text, is_active, created_at, updated_at`
	busColumns    = `id, registration_number, capacity, is_active, created_at, updated_at`
	routeColumns  = `id, name, code, origin_stop_id, destination_stop_id, is_active`
	driverColumns = `id, first_name, last_name, phone_number, license_number, is_active`
	tripColumns   = `id, route_id, bus_id, driver_id, departure_time, arrival_time`
	feedbackCols  = `id, route_id, trip_id, rating, comment, passenger_name, created_at`
)

// FleetRepo implements domain.FleetRepository backed by PostgreSQL.
type FleetRepo struct {
	pool *pgxpool.Pool
}

func NewFleetRepo(pool *pgxpool.Pool) *FleetRepo {
	return &FleetRepo{pool: pool}
}

// --- Stops ---

func scanStop(row pgx.Row) (domain.Stop, error) {
	var s domain.Stop
	var lat, lng *string
	if err := row.Scan(&s.ID, &s.Name, &lat, &lng, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Stop{}, err
	}

	var err error
	if s.Latitude, err = parseCoordinate(lat); err != nil {
		return domain.Stop{}, fmt.Errorf("invalid latitude for stop %d: %w", s.ID, err)
	}
	if s.Longitude, err = parseCoordinate(lng); err != nil {
		return domain.Stop{}, fmt.Errorf("invalid longitude for stop %d: %w", s.ID, err)
	}
	return s, nil
}

func parseCoordinate(v *string) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatCoordinate(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(6)
	return &s
}

func (r *FleetRepo) ListStops(ctx context.Context) ([]domain.Stop, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stopColumns+` FROM stops ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stops: %w", err)
	}
	stops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Stop, error) {
		return scanStop(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stops: %w", err)
	}
	return stops, nil
}

func (r *FleetRepo) UpsertStop(ctx context.Context, stop domain.Stop) (*domain.Stop, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO stops (name, latitude, longitude, is_active)
		VALUES ($1, $2::text::numeric, $3::text::numeric, $4)
		ON CONFLICT (name) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING `+stopColumns,
		stop.Name, formatCoordinate(stop.Latitude), formatCoordinate(stop.Longitude), stop.IsActive)

	saved, err := scanStop(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert stop %q: %w", stop.Name, err)
	}
	return &saved, nil
}

// --- Buses ---

func scanBus(row pgx.Row) (domain.Bus, error) {
	var b domain.Bus
	err := row.Scan(&b.ID, &b.RegistrationNumber, &b.Capacity, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *FleetRepo) ListBuses(ctx context.Context) ([]domain.Bus, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+busColumns+` FROM buses ORDER BY registration_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list buses: %w", err)
	}
	buses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Bus, error) {
		return scanBus(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan buses: %w", err)
	}
	return buses, nil
}

func (r *FleetRepo) GetBusByRegistration(ctx context.Context, registration string) (*domain.Bus, error) {
	bus, err := scanBus(r.pool.QueryRow(ctx, `SELECT `+busColumns+` FROM buses WHERE registration_number = $1`, registration))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bus by registration: %w", err)
	}
	return &bus, nil
}

func (r *FleetRepo) UpsertBus(ctx context.Context, bus domain.Bus) (*domain.Bus, error) {
	if bus.Capacity <= 0 {
		bus.Capacity = domain.DefaultBusCapacity
	}

	saved, err := scanBus(r.pool.QueryRow(ctx, `
		INSERT INTO buses (registration_number, capacity, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (registration_number) DO UPDATE SET
			capacity = EXCLUDED.capacity,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING `+busColumns,
		bus.RegistrationNumber, bus.Capacity, bus.IsActive))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bus %q: %w", bus.RegistrationNumber, err)
	}
	return &saved, nil
}

// --- Routes ---

func scanRoute(row pgx.Row) (domain.Route, error) {
	var rt domain.Route
	err := row.Scan(&rt.ID, &rt.Name, &rt.Code, &rt.OriginStopID, &rt.DestinationStopID, &rt.IsActive)
	return rt, err
}

func (r *FleetRepo) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	routes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Route, error) {
		return scanRoute(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan routes: %w", err)
	}
	return routes, nil
}

// GetRouteByCode returns the route with its stops in travel order.
func (r *FleetRepo) GetRouteByCode(ctx context.Context, code string) (*domain.Route, error) {
	route, err := scanRoute(r.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route by code: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rs.stop_order, s.id, s.name, s.latitude::text, s.longitude::text, s.is_active, s.created_at, s.updated_at
		FROM route_stops rs
		JOIN stops s ON s.id = rs.stop_id
		WHERE rs.route_id = $1
		ORDER BY rs.stop_order`, route.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list route stops: %w", err)
	}
	route.Stops, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RouteStop, error) {
		var rs domain.RouteStop
		var lat, lng *string
		if err := row.Scan(&rs.Order, &rs.Stop.ID, &rs.Stop.Name, &lat, &lng, &rs.Stop.IsActive, &rs.Stop.CreatedAt, &rs.Stop.UpdatedAt); err != nil {
			return rs, err
		}
		var err error
		if rs.Stop.Latitude, err = parseCoordinate(lat); err != nil {
			return rs, err
		}
		rs.Stop.Longitude, err = parseCoordinate(lng)
		return rs, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan route stops: %w", err)
	}
	return &route, nil
}

func (r *FleetRepo) UpsertRoute(ctx context.Context, route domain.Route) (*domain.Route, error) {
	saved, err := scanRoute(r.pool.QueryRow(ctx, `
		INSERT INTO routes (name, code, origin_stop_id, destination_stop_id, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			origin_stop_id = EXCLUDED.origin_stop_id,
			destination_stop_id = EXCLUDED.destination_stop_id,
			is_active = EXCLUDED.is_active
		RETURNING `+routeColumns,
		route.Name, route.Code, route.OriginStopID, route.DestinationStopID, route.IsActive))
	if isForeignKeyViolation(err) {
		return nil, domain.ErrStopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert route %q: %w", route.Code, err)
	}
	return &saved, nil
}

// SetRouteStops replaces the ordered stop list of a route. Order values are
// the slice indexes.
func (r *FleetRepo) SetRouteStops(ctx context.Context, routeID int64, stopIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM routes WHERE id = $1)`, routeID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check route: %w", err)
	}
	if !exists {
		return domain.ErrRouteNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM route_stops WHERE route_id = $1`, routeID); err != nil {
		return fmt.Errorf("failed to clear route stops: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"route_stops"},
		[]string{"route_id", "stop_id", "stop_order"},
		pgx.CopyFromSlice(len(stopIDs), func(i int) ([]any, error) {
			return []any{routeID, stopIDs[i], int32(i)}, nil
		}),
	)
	if isForeignKeyViolation(err) {
		return domain.ErrStopNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert route stops: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- Drivers ---

func scanDriver(row pgx.Row) (domain.Driver, error) {
	var d domain.Driver
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.PhoneNumber, &d.LicenseNumber, &d.IsActive)
	return d, err
}

func (r *FleetRepo) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	drivers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Driver, error) {
		return scanDriver(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan drivers: %w", err)
	}
	return drivers, nil
}

func (r *FleetRepo) UpsertDriver(ctx context.Context, driver domain.Driver) (*domain.Driver, error) {
	saved, err := scanDriver(r.pool.QueryRow(ctx, `
		INSERT INTO drivers (first_name, last_name, phone_number, license_number, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (license_number) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone_number = EXCLUDED.phone_number,
			is_active = EXCLUDED.is_active
		RETURNING `+driverColumns,
		driver.FirstName, driver.LastName, driver.PhoneNumber, driver.LicenseNumber, driver.IsActive))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert driver %q: %w", driver.LicenseNumber, err)
	}
	return &saved, nil
}

// AssignDriver makes the given route and bus the driver's only active
// assignment.
func (r *FleetRepo) AssignDriver(ctx context.Context, driverID, routeID, busID int64) (*domain.DriverAssignment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE driver_assignments SET is_active = FALSE WHERE driver_id = $1 AND is_active`, driverID); err != nil {
		return nil, fmt.Errorf("failed to deactivate assignments: %w", err)
	}

	var a domain.DriverAssignment
	err = tx.QueryRow(ctx, `
		INSERT INTO driver_assignments (driver_id, route_id, bus_id)
		VALUES ($1, $2, $3)
		RETURNING id, driver_id, route_id, bus_id, assigned_at, is_active`,
		driverID, routeID, busID).Scan(&a.ID, &a.DriverID, &a.RouteID, &a.BusID, &a.AssignedAt, &a.IsActive)
	if fk := foreignKeyTarget(err); fk != nil {
		return nil, fk
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &a, nil
}

// --- Trips ---

func scanTrip(row pgx.Row) (domain.Trip, error) {
	var t domain.Trip
	err := row.Scan(&t.ID, &t.RouteID, &t.BusID, &t.DriverID, &t.DepartureTime, &t.ArrivalTime)
	return t, err
}

func (r *FleetRepo) CreateTrip(ctx context.Context, trip domain.Trip) (*domain.Trip, error) {
	saved, err := scanTrip(r.pool.QueryRow(ctx, `
		INSERT INTO trips (route_id, bus_id, driver_id, departure_time, arrival_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tripColumns,
		trip.RouteID, trip.BusID, trip.DriverID, trip.DepartureTime, trip.ArrivalTime))
	if fk := foreignKeyTarget(err); fk != nil {
		return nil, fk
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}
	return &saved, nil
}

func (r *FleetRepo) GetTrip(ctx context.Context, tripID int64) (*domain.Trip, error) {
	trip, err := scanTrip(r.pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// --- Feedback ---

func scanFeedback(row pgx.Row) (domain.Feedback, error) {
	var f domain.Feedback
	err := row.Scan(&f.ID, &f.RouteID, &f.TripID, &f.Rating, &f.Comment, &f.PassengerName, &f.CreatedAt)
	return f, err
}

func (r *FleetRepo) CreateFeedback(ctx context.Context, feedback domain.Feedback) (*domain.Feedback, error) {
	saved, err := scanFeedback(r.pool.QueryRow(ctx, `
		INSERT INTO feedback (route_id, trip_id, rating, comment, passenger_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+feedbackCols,
		feedback.RouteID, feedback.TripID, feedback.Rating, feedback.Comment, feedback.PassengerName))
	if fk := foreignKeyTarget(err); fk != nil {
		return nil, fk
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}
	return &saved, nil
}

func (r *FleetRepo) ListFeedbackForRoute(ctx context.Context, routeID int64) ([]domain.Feedback, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+feedbackCols+` FROM feedback WHERE route_id = $1 ORDER BY created_at DESC, id DESC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Feedback, error) {
		return scanFeedback(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan feedback: %w", err)
	}
	return items, nil
}

// --- Errors ---

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// foreignKeyTarget maps a foreign key violation to the not-found error of
// the referenced table. It returns nil for any other error.
func foreignKeyTarget(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != foreignKeyViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "driver_assignments_driver_id_fkey", "trips_driver_id_fkey":
		return domain.ErrDriverNotFound
	case "driver_assignments_bus_id_fkey", "trips_bus_id_fkey":
		return domain.ErrBusNotFound
	case "trips_route_id_fkey", "driver_assignments_route_id_fkey", "feedback_route_id_fkey":
		return domain.ErrRouteNotFound
	case "feedback_trip_id_fkey":
		return domain.ErrTripNotFound
	default:
		return fmt.Errorf("referenced record not found: %w", err)
	}
}

var _ domain.FleetRepository = (*FleetRepo)(nil)
