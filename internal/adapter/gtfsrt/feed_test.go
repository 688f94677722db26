package gtfsrt

import (
	"encoding/json"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

var now = time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)

func samplePositions() []domain.VehiclePosition {
	return []domain.VehiclePosition{
		{BusID: "SOW-001", RouteID: "R1", Lat: -26.2485, Lng: 27.854, Heading: 90, NextStopID: "2", ReportedAt: now.Add(-5 * time.Second)},
		{BusID: "SOW-002", Lat: -26.2618, Lng: 27.8672, Heading: -90, ReportedAt: now.Add(-2 * time.Second)},
	}
}

func TestBuildVehiclePositions(t *testing.T) {
	feed := BuildVehiclePositions("soweto", samplePositions(), now)

	require.NotNil(t, feed.Header)
	assert.Equal(t, "2.0", feed.Header.GetGtfsRealtimeVersion())
	assert.Equal(t, gtfsrtpb.FeedHeader_FULL_DATASET, feed.Header.GetIncrementality())
	assert.Equal(t, uint64(now.Unix()), feed.Header.GetTimestamp())
	require.Len(t, feed.Entity, 2)

	first := feed.Entity[0]
	assert.Equal(t, "soweto:SOW-001", first.GetId())
	vp := first.GetVehicle()
	assert.Equal(t, "SOW-001", vp.GetVehicle().GetId())
	assert.Equal(t, "R1", vp.GetTrip().GetRouteId())
	assert.Equal(t, "2", vp.GetStopId())
	assert.InDelta(t, -26.2485, vp.GetPosition().GetLatitude(), 1e-4)
	assert.InDelta(t, 27.854, vp.GetPosition().GetLongitude(), 1e-4)
	assert.Equal(t, float32(90), vp.GetPosition().GetBearing())
	assert.Equal(t, uint64(now.Add(-5*time.Second).Unix()), vp.GetTimestamp())

	second := feed.Entity[1].GetVehicle()
	assert.Nil(t, second.GetTrip(), "no trip descriptor without a route")
	assert.Equal(t, float32(270), second.GetPosition().GetBearing())
}

func TestBuildVehiclePositions_Empty(t *testing.T) {
	feed := BuildVehiclePositions("soweto", nil, now)

	assert.Empty(t, feed.Entity)
	data, _, err := Encode(feed, false)
	require.NoError(t, err)

	var decoded gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(data, &decoded))
	assert.Equal(t, "2.0", decoded.GetHeader().GetGtfsRealtimeVersion())
}

func TestEncode_Protobuf(t *testing.T) {
	data, contentType, err := Encode(BuildVehiclePositions("soweto", samplePositions(), now), false)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeProtobuf, contentType)

	var decoded gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(data, &decoded))
	require.Len(t, decoded.GetEntity(), 2)
	assert.Equal(t, "SOW-002", decoded.GetEntity()[1].GetVehicle().GetVehicle().GetId())
}

func TestEncode_JSON(t *testing.T) {
	data, contentType, err := Encode(BuildVehiclePositions("soweto", samplePositions(), now), true)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, contentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "header")
	assert.Len(t, decoded["entity"], 2)
}

func TestNormalizeBearing(t *testing.T) {
	assert.Equal(t, 0.0, normalizeBearing(360))
	assert.Equal(t, 270.0, normalizeBearing(-90))
	assert.Equal(t, 45.0, normalizeBearing(765))
	assert.Equal(t, 123.5, normalizeBearing(123.5))
}
