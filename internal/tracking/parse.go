package tracking

import (
	"encoding/json"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/domain"
)

// ParseLocationUpdate extracts a position from a BUS_LOCATION_UPDATE payload.
// ok is false for any other message, or when busId or coordinates are missing
// or out of range.
func ParseLocationUpdate(payload []byte, receivedAt time.Time) (domain.VehiclePosition, bool) {
	var update domain.BusLocationUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return domain.VehiclePosition{}, false
	}
	if update.Type != domain.TypeBusLocationUpdate || update.BusID == "" || update.Lat == nil || update.Lng == nil {
		return domain.VehiclePosition{}, false
	}
	if *update.Lat < -90 || *update.Lat > 90 || *update.Lng < -180 || *update.Lng > 180 {
		return domain.VehiclePosition{}, false
	}

	pos := domain.VehiclePosition{
		BusID:      update.BusID,
		RouteID:    update.RouteID,
		Lat:        *update.Lat,
		Lng:        *update.Lng,
		Heading:    update.Heading,
		ReportedAt: receivedAt,
		ReceivedAt: receivedAt,
	}
	if update.Timestamp > 0 {
		pos.ReportedAt = time.UnixMilli(update.Timestamp).UTC()
	}
	if update.NextStop != nil {
		pos.NextStopID = update.NextStop.ID
	}
	return pos, true
}
