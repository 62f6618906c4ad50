package gtfs

import (
	"sort"

	"go.uber.org/zap"
)

// Trolleybus routes outside this set are recoded as bus routes at load time.
// The operator publishes several bus lines under the trolleybus type code;
// only the lines below are genuinely electric.
var immuneTrolleybusRouteIDs = map[string]struct{}{
	"TB1": {}, "TB2": {}, "TB3": {}, "TB4": {}, "TB6": {}, "TB7": {},
	"TB8": {}, "TB9": {}, "TB10": {}, "TB21": {}, "TB27": {}, "TB30": {},
	"TB32": {}, "TB40": {},
}

// StopVisit is one entry of a trip's ordered stop sequence.
type StopVisit struct {
	StopID   string `json:"stop_id"`
	Sequence int    `json:"stop_sequence"`
}

// ScheduleIndex is the immutable-after-load view of the static timetable.
// It is shared read-only by all request handlers; no method mutates it.
type ScheduleIndex struct {
	routes map[string]*Route
	trips  map[string]*Trip
	stops  map[string]*Stop // only stops actually visited by a trip

	scheduleByTrip map[string]map[string]string // trip_id -> stop_id -> arrival clock time
	tripStopOrder  map[string][]StopVisit       // trip_id -> visits ordered by sequence
	tripStopSeq    map[string]map[string]int    // trip_id -> stop_id -> sequence number
	stopToTrips    map[string][]string          // stop_id -> trip_ids
	stopCategories map[string]map[string]bool   // stop_id -> transport category set
	stopsByCode    map[string][]string          // stop_code -> co-located stop_ids
}

// BuildScheduleIndex derives the lookup maps from the loaded tables.
// Malformed rows are skipped with a warning; they never abort the build.
func BuildScheduleIndex(ds *Dataset, logger *zap.Logger) *ScheduleIndex {
	idx := &ScheduleIndex{
		routes:         map[string]*Route{},
		trips:          map[string]*Trip{},
		stops:          map[string]*Stop{},
		scheduleByTrip: map[string]map[string]string{},
		tripStopOrder:  map[string][]StopVisit{},
		tripStopSeq:    map[string]map[string]int{},
		stopToTrips:    map[string][]string{},
		stopCategories: map[string]map[string]bool{},
		stopsByCode:    map[string][]string{},
	}

	for _, r := range ds.Routes {
		if r.RouteID == "" {
			logger.Warn("skipping route row without route_id")
			continue
		}
		if r.Type == RouteTypeTrolley {
			if _, immune := immuneTrolleybusRouteIDs[r.RouteID]; !immune {
				recoded := *r
				recoded.Type = RouteTypeBus
				idx.routes[r.RouteID] = &recoded
				continue
			}
		}
		idx.routes[r.RouteID] = r
	}

	for _, t := range ds.Trips {
		if t.TripID == "" || t.RouteID == "" {
			logger.Warn("skipping trip row with missing identifiers",
				zap.String("trip_id", t.TripID))
			continue
		}
		idx.trips[t.TripID] = t
	}

	usedStops := map[string]struct{}{}
	for _, st := range ds.StopTimes {
		if st.TripID == "" || st.StopID == "" || !st.Sequence.Valid {
			logger.Warn("skipping malformed stop_times row",
				zap.String("trip_id", st.TripID),
				zap.String("stop_id", st.StopID))
			continue
		}
		usedStops[st.StopID] = struct{}{}
		seq := st.Sequence.Value

		if idx.scheduleByTrip[st.TripID] == nil {
			idx.scheduleByTrip[st.TripID] = map[string]string{}
		}
		idx.scheduleByTrip[st.TripID][st.StopID] = st.ArrivalTime

		idx.tripStopOrder[st.TripID] = append(idx.tripStopOrder[st.TripID],
			StopVisit{StopID: st.StopID, Sequence: seq})

		if idx.tripStopSeq[st.TripID] == nil {
			idx.tripStopSeq[st.TripID] = map[string]int{}
		}
		idx.tripStopSeq[st.TripID][st.StopID] = seq

		idx.stopToTrips[st.StopID] = append(idx.stopToTrips[st.StopID], st.TripID)

		if trip, ok := idx.trips[st.TripID]; ok {
			if route, ok := idx.routes[trip.RouteID]; ok {
				if cat := CategoryForRoute(route); cat != "" {
					if idx.stopCategories[st.StopID] == nil {
						idx.stopCategories[st.StopID] = map[string]bool{}
					}
					idx.stopCategories[st.StopID][cat] = true
				}
			}
		}
	}

	for tripID := range idx.tripStopOrder {
		visits := idx.tripStopOrder[tripID]
		sort.Slice(visits, func(i, j int) bool { return visits[i].Sequence < visits[j].Sequence })
	}

	for _, s := range ds.Stops {
		if s.StopID == "" {
			logger.Warn("skipping stop row without stop_id")
			continue
		}
		if _, used := usedStops[s.StopID]; !used {
			continue
		}
		if !s.Lat.Valid || !s.Lon.Valid {
			logger.Warn("skipping stop row with malformed coordinates",
				zap.String("stop_id", s.StopID))
			continue
		}
		idx.stops[s.StopID] = s
		if s.Code != "" {
			idx.stopsByCode[s.Code] = append(idx.stopsByCode[s.Code], s.StopID)
		}
	}

	return idx
}

func (idx *ScheduleIndex) Route(routeID string) (*Route, bool) {
	r, ok := idx.routes[routeID]
	return r, ok
}

func (idx *ScheduleIndex) Trip(tripID string) (*Trip, bool) {
	t, ok := idx.trips[tripID]
	return t, ok
}

func (idx *ScheduleIndex) Stop(stopID string) (*Stop, bool) {
	s, ok := idx.stops[stopID]
	return s, ok
}

// AllRoutes returns the route records in unspecified order.
func (idx *ScheduleIndex) AllRoutes() []*Route {
	out := make([]*Route, 0, len(idx.routes))
	for _, r := range idx.routes {
		out = append(out, r)
	}
	return out
}

// AllStops returns the visited stop records in unspecified order.
func (idx *ScheduleIndex) AllStops() []*Stop {
	out := make([]*Stop, 0, len(idx.stops))
	for _, s := range idx.stops {
		out = append(out, s)
	}
	return out
}

// AllTrips returns the trip records in unspecified order.
func (idx *ScheduleIndex) AllTrips() []*Trip {
	out := make([]*Trip, 0, len(idx.trips))
	for _, t := range idx.trips {
		out = append(out, t)
	}
	return out
}

// TripsForStop returns the trip ids visiting the stop.
func (idx *ScheduleIndex) TripsForStop(stopID string) []string {
	return idx.stopToTrips[stopID]
}

// ScheduleForTrip returns stop_id -> scheduled arrival clock time.
func (idx *ScheduleIndex) ScheduleForTrip(tripID string) map[string]string {
	return idx.scheduleByTrip[tripID]
}

// StopOrderForTrip returns the trip's visits ordered by stop_sequence.
func (idx *ScheduleIndex) StopOrderForTrip(tripID string) []StopVisit {
	return idx.tripStopOrder[tripID]
}

// SequenceOfStop returns the stop_sequence of stopID within the trip.
func (idx *ScheduleIndex) SequenceOfStop(tripID, stopID string) (int, bool) {
	m, ok := idx.tripStopSeq[tripID]
	if !ok {
		return 0, false
	}
	seq, ok := m[stopID]
	return seq, ok
}

// CategoriesForStop returns the sorted transport categories served at a stop.
func (idx *ScheduleIndex) CategoriesForStop(stopID string) []string {
	set := idx.stopCategories[stopID]
	out := make([]string, 0, len(set))
	for cat := range set {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// PhysicalStopIDs returns every stop record co-located with stopID: all
// stops sharing its stop_code, plus the stop itself. Opposite-direction
// platforms of the same street stop share a code.
func (idx *ScheduleIndex) PhysicalStopIDs(stopID string) []string {
	set := map[string]struct{}{stopID: {}}
	if s, ok := idx.stops[stopID]; ok && s.Code != "" {
		for _, id := range idx.stopsByCode[s.Code] {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// StopIDsForCode returns the stop ids sharing a rider-facing stop code.
func (idx *ScheduleIndex) StopIDsForCode(code string) []string {
	return idx.stopsByCode[code]
}
