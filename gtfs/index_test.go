package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validInt(v int) CSVInt        { return CSVInt{Value: v, Valid: true} }
func validFloat(v float64) CSVFloat { return CSVFloat{Value: v, Valid: true} }

func testDataset() *Dataset {
	return &Dataset{
		Routes: []*Route{
			{RouteID: "R5", ShortName: "5", Type: RouteTypeBus},
			{RouteID: "TB2", ShortName: "2", Type: RouteTypeTrolley},
			{RouteID: "TB99", ShortName: "99", Type: RouteTypeTrolley},
			{RouteID: "TM10", ShortName: "10", Type: RouteTypeTram},
			{RouteID: "N1", ShortName: "N1", Type: RouteTypeBus},
		},
		Trips: []*Trip{
			{TripID: "T5", RouteID: "R5", ServiceID: "WD", Headsign: "Center"},
			{TripID: "T2", RouteID: "TB2", ServiceID: "WD", Headsign: "East"},
			{TripID: "T99", RouteID: "TB99", ServiceID: "WD", Headsign: "West"},
			{TripID: "TN", RouteID: "N1", ServiceID: "WD", Headsign: "Night loop"},
		},
		Stops: []*Stop{
			{StopID: "S1", Code: "0363", Name: "Orlov Most", Lat: validFloat(42.69), Lon: validFloat(23.33)},
			{StopID: "S2", Code: "0363", Name: "Orlov Most", Lat: validFloat(42.6901), Lon: validFloat(23.3301)},
			{StopID: "S3", Code: "0400", Name: "NDK", Lat: validFloat(42.684), Lon: validFloat(23.319)},
			{StopID: "UNUSED", Code: "0999", Name: "Nowhere", Lat: validFloat(42.0), Lon: validFloat(23.0)},
		},
		StopTimes: []*StopTime{
			{TripID: "T5", StopID: "S3", ArrivalTime: "08:00:00", Sequence: validInt(3)},
			{TripID: "T5", StopID: "S1", ArrivalTime: "07:50:00", Sequence: validInt(1)},
			{TripID: "T2", StopID: "S2", ArrivalTime: "09:00:00", Sequence: validInt(1)},
			{TripID: "T99", StopID: "S3", ArrivalTime: "10:00:00", Sequence: validInt(1)},
			{TripID: "TN", StopID: "S1", ArrivalTime: "23:30:00", Sequence: validInt(1)},
			{TripID: "", StopID: "S1", ArrivalTime: "11:00:00", Sequence: validInt(1)},
			{TripID: "T5", StopID: "S1", ArrivalTime: "bad", Sequence: CSVInt{}},
		},
	}
}

func TestBuildScheduleIndexTrolleybusRecode(t *testing.T) {
	idx := BuildScheduleIndex(testDataset(), zap.NewNop())

	immune, ok := idx.Route("TB2")
	require.True(t, ok)
	assert.Equal(t, RouteTypeTrolley, immune.Type, "allow-listed trolleybus keeps its type")

	recoded, ok := idx.Route("TB99")
	require.True(t, ok)
	assert.Equal(t, RouteTypeBus, recoded.Type, "unknown trolleybus id is recoded to bus")
}

func TestBuildScheduleIndexOrderingAndLookups(t *testing.T) {
	idx := BuildScheduleIndex(testDataset(), zap.NewNop())

	visits := idx.StopOrderForTrip("T5")
	require.Len(t, visits, 2)
	assert.Equal(t, "S1", visits[0].StopID)
	assert.Equal(t, "S3", visits[1].StopID)

	seq, ok := idx.SequenceOfStop("T5", "S3")
	require.True(t, ok)
	assert.Equal(t, 3, seq)

	sched := idx.ScheduleForTrip("T5")
	assert.Equal(t, "07:50:00", sched["S1"])

	assert.ElementsMatch(t, []string{"T5", "TN"}, idx.TripsForStop("S1"))
}

func TestBuildScheduleIndexSkipsMalformedRows(t *testing.T) {
	idx := BuildScheduleIndex(testDataset(), zap.NewNop())

	// The row without a trip_id and the row with an invalid sequence must
	// not contribute visits.
	for _, visits := range [][]StopVisit{idx.StopOrderForTrip("T5"), idx.StopOrderForTrip("")} {
		for _, v := range visits {
			assert.NotEqual(t, "", v.StopID)
		}
	}
	assert.Empty(t, idx.StopOrderForTrip(""))
}

func TestStopCategoriesAndCodes(t *testing.T) {
	idx := BuildScheduleIndex(testDataset(), zap.NewNop())

	assert.Equal(t, []string{"BUS", "NIGHT"}, idx.CategoriesForStop("S1"))
	assert.ElementsMatch(t, []string{"S1", "S2"}, idx.PhysicalStopIDs("S1"))
	assert.ElementsMatch(t, []string{"S1", "S2"}, idx.StopIDsForCode("0363"))

	_, ok := idx.Stop("UNUSED")
	assert.False(t, ok, "stops visited by no trip are dropped")
}
