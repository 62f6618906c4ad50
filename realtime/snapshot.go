package realtime

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// Snapshot holds the most recently parsed feed messages. It is replaced as
// a whole on refresh and never mutated afterwards, so holders of a pointer
// can read it without locking. Any channel may be nil if it was never
// fetched successfully.
type Snapshot struct {
	TripUpdates      *gtfsrtpb.FeedMessage
	VehiclePositions *gtfsrtpb.FeedMessage
	Alerts           *gtfsrtpb.FeedMessage
	FetchedAt        time.Time
}

// ArrivalPredictions extracts trip_id -> stop_id -> predicted arrival epoch
// from the trip-updates channel. Only positive arrival times are kept.
func (s *Snapshot) ArrivalPredictions() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	if s == nil || s.TripUpdates == nil {
		return out
	}
	for _, e := range s.TripUpdates.Entity {
		tu := e.TripUpdate
		if tu == nil || tu.Trip == nil || tu.Trip.TripId == nil {
			continue
		}
		tripID := *tu.Trip.TripId
		for _, stu := range tu.StopTimeUpdate {
			if stu.StopId == nil || stu.Arrival == nil || stu.Arrival.Time == nil {
				continue
			}
			ts := *stu.Arrival.Time
			if ts <= 0 {
				continue
			}
			if out[tripID] == nil {
				out[tripID] = map[string]int64{}
			}
			out[tripID][*stu.StopId] = ts
		}
	}
	return out
}

// VehicleByTrip extracts trip_id -> vehicle position from the
// vehicle-positions channel.
func (s *Snapshot) VehicleByTrip() map[string]*gtfsrtpb.VehiclePosition {
	out := map[string]*gtfsrtpb.VehiclePosition{}
	if s == nil || s.VehiclePositions == nil {
		return out
	}
	for _, e := range s.VehiclePositions.Entity {
		v := e.Vehicle
		if v == nil || v.Trip == nil || v.Trip.TripId == nil {
			continue
		}
		out[*v.Trip.TripId] = v
	}
	return out
}
