// Package gtfsrt renders tracked bus positions as a GTFS-Realtime
// VehiclePositions feed.
package gtfsrt

import (
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	specVersion = "2.0"

	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// BuildVehiclePositions produces a full-dataset feed with one entity per bus.
// Entity ids are prefixed with agency so feeds from several operators can be
// merged downstream.
func BuildVehiclePositions(agency string, positions []domain.VehiclePosition, now time.Time) *gtfsrtpb.FeedMessage {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(specVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(positions)),
	}

	for _, pos := range positions {
		vehicle := &gtfsrtpb.VehiclePosition{
			Vehicle: &gtfsrtpb.VehicleDescriptor{
				Id:    proto.String(pos.BusID),
				Label: proto.String(pos.BusID),
			},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(pos.Lat)),
				Longitude: proto.Float32(float32(pos.Lng)),
				Bearing:   proto.Float32(float32(normalizeBearing(pos.Heading))),
			},
			Timestamp: proto.Uint64(uint64(pos.ReportedAt.Unix())),
		}
		if pos.RouteID != "" {
			vehicle.Trip = &gtfsrtpb.TripDescriptor{RouteId: proto.String(pos.RouteID)}
		}
		if pos.NextStopID != "" {
			vehicle.StopId = proto.String(pos.NextStopID)
		}

		feed.Entity = append(feed.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(fmt.Sprintf("%s:%s", agency, pos.BusID)),
			Vehicle: vehicle,
		})
	}

	return feed
}

// Encode serialises feed as protobuf, or as JSON when asJSON is set.
// It returns the body and its content type.
func Encode(feed *gtfsrtpb.FeedMessage, asJSON bool) ([]byte, string, error) {
	if asJSON {
		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(feed)
		if err != nil {
			return nil, "", fmt.Errorf("marshal feed as json: %w", err)
		}
		return data, ContentTypeJSON, nil
	}

	data, err := proto.Marshal(feed)
	if err != nil {
		return nil, "", fmt.Errorf("marshal feed: %w", err)
	}
	return data, ContentTypeProtobuf, nil
}

// normalizeBearing maps any heading onto [0, 360).
func normalizeBearing(heading float64) float64 {
	for heading < 0 {
		heading += 360
	}
	for heading >= 360 {
		heading -= 360
	}
	return heading
}
