package arrivals

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/sofiatransit/arrivals/gtfs"
)

// CategorySummary is the coarse per-code bulk answer: which transport
// categories have an upcoming arrival at the stop.
type CategorySummary struct {
	Arrivals []string `json:"arrivals"`
}

// VehicleInfo is one live vehicle row of the vehicles and route-view
// payloads.
type VehicleInfo struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	TripID       string  `json:"trip_id"`
	RouteName    string  `json:"route_name"`
	RouteType    string  `json:"route_type"`
	Destination  string  `json:"destination"`
	NextStopID   string  `json:"next_stop_id,omitempty"`
	StopSequence uint32  `json:"stop_sequence,omitempty"`
}

// RouteViewPayload combines a trip's static geometry with the live
// vehicles of its line.
type RouteViewPayload struct {
	Shape    []gtfs.Point        `json:"shape"`
	Stops    []gtfs.DetailedStop `json:"stops"`
	Vehicles []VehicleInfo       `json:"vehicles"`
}

// StopRecord is a stop enriched with the transport categories serving it.
type StopRecord struct {
	StopID       string   `json:"stop_id"`
	Code         string   `json:"stop_code"`
	Name         string   `json:"stop_name"`
	Lat          float64  `json:"stop_lat"`
	Lon          float64  `json:"stop_lon"`
	ServiceTypes []string `json:"service_types"`
}

// LineDirection is one direction of a structured line listing.
type LineDirection struct {
	Headsign      string `json:"headsign"`
	ExampleTripID string `json:"example_trip_id"`
}

// StructuredLine is one line of the network, with its directions.
type StructuredLine struct {
	LineName      string          `json:"line_name"`
	TransportType string          `json:"transport_type"`
	Directions    []LineDirection `json:"directions"`
}

// TimetableEntry is the scheduled times of one (route, destination) pair.
type TimetableEntry struct {
	Times     []string `json:"times"`
	RouteType string   `json:"route_type"`
}

// WeekTimetable is the full weekday/holiday timetable of a stop code,
// grouped route name -> destination.
type WeekTimetable struct {
	Weekday map[string]map[string]*TimetableEntry `json:"weekday"`
	Holiday map[string]map[string]*TimetableEntry `json:"holiday"`
}

// transportTypeForLine is the line-level category, unlike the per-stop
// category it knows the metro type codes and defaults to bus.
func transportTypeForLine(route *gtfs.Route) string {
	if strings.HasPrefix(route.ShortName, "N") {
		return gtfs.CategoryNight
	}
	switch route.Type {
	case gtfs.RouteTypeTram:
		return gtfs.CategoryTram
	case gtfs.RouteTypeTrolley:
		return gtfs.CategoryTrolley
	case "1", "2":
		return gtfs.CategoryMetro
	}
	return gtfs.CategoryBus
}

// CategoriesForCodes answers the bulk widget query: for each requested
// stop code, the set of transport categories with an arrival in the next
// window, considering active services only.
func (e *Engine) CategoriesForCodes(ctx context.Context, codes []string) map[string]CategorySummary {
	out := map[string]CategorySummary{}
	if len(codes) == 0 {
		return out
	}
	snap := e.feed.EnsureFresh(ctx)
	preds := snap.ArrivalPredictions()
	now := e.clock().In(e.loc)

	requested := map[string]struct{}{}
	for _, c := range codes {
		requested[c] = struct{}{}
	}

	categories := map[string]map[string]struct{}{}
	for tripID := range e.tripsForCodes(requested) {
		trip, ok := e.idx.Trip(tripID)
		if !ok || !e.cal.IsActive(trip.ServiceID) {
			continue
		}
		route, ok := e.idx.Route(trip.RouteID)
		if !ok {
			continue
		}
		for stopID, clock := range e.idx.ScheduleForTrip(tripID) {
			stop, ok := e.idx.Stop(stopID)
			if !ok {
				continue
			}
			if _, wanted := requested[stop.Code]; !wanted {
				continue
			}
			if !e.isUpcoming(preds, tripID, stopID, clock, now) {
				continue
			}
			if categories[stop.Code] == nil {
				categories[stop.Code] = map[string]struct{}{}
			}
			categories[stop.Code][transportTypeForLine(route)] = struct{}{}
		}
	}

	for code, set := range categories {
		list := make([]string, 0, len(set))
		for cat := range set {
			list = append(list, cat)
		}
		sort.Strings(list)
		out[code] = CategorySummary{Arrivals: list}
	}
	return out
}

// DetailedForCodes answers the bulk departure-board query: full estimate
// lists per stop code. The fusion here is the simplified bulk variant: a
// present vehicle yields a hybrid estimate at the scheduled time, with no
// geofencing.
func (e *Engine) DetailedForCodes(ctx context.Context, codes []string) map[string][]Estimate {
	out := map[string][]Estimate{}
	if len(codes) == 0 {
		return out
	}
	snap := e.feed.EnsureFresh(ctx)
	alerts := CorrelateAlerts(snap, e.idx)
	preds := snap.ArrivalPredictions()
	vehicles := snap.VehicleByTrip()
	now := e.clock().In(e.loc)

	requested := map[string]struct{}{}
	for _, c := range codes {
		requested[c] = struct{}{}
		out[c] = []Estimate{}
	}

	for tripID := range e.tripsForCodes(requested) {
		trip, ok := e.idx.Trip(tripID)
		if !ok {
			continue
		}
		route, ok := e.idx.Route(trip.RouteID)
		if !ok {
			continue
		}
		for stopID, clock := range e.idx.ScheduleForTrip(tripID) {
			stop, ok := e.idx.Stop(stopID)
			if !ok {
				continue
			}
			if _, wanted := requested[stop.Code]; !wanted {
				continue
			}
			est, ok := e.bulkEstimate(trip, route, tripID, stopID, clock, preds, vehicles, now)
			if !ok {
				continue
			}
			est.Alerts = alerts[est.RouteName+"-"+est.RouteType]
			e.countEstimate(est.PredictionSource)
			out[stop.Code] = append(out[stop.Code], est)
		}
	}
	for code := range out {
		sortEstimates(out[code])
	}
	return out
}

func (e *Engine) bulkEstimate(
	trip *gtfs.Trip,
	route *gtfs.Route,
	tripID, stopID, clock string,
	preds map[string]map[string]int64,
	vehicles map[string]*gtfsrtpb.VehiclePosition,
	now time.Time,
) (Estimate, bool) {
	est := Estimate{
		TripID:      tripID,
		RouteName:   route.ShortName,
		RouteType:   route.Type,
		Destination: trip.Headsign,
	}

	if ts, ok := preds[tripID][stopID]; ok && ts > now.Unix()-int64(officialFreshness.Seconds()) {
		est.ETAMinutes = clampMinutes(float64(ts-now.Unix()) / 60)
		est.PredictionSource = SourceOfficial
		est.IsLive = true
		return est, true
	}

	scheduledETA, haveScheduled := e.scheduledMinutes(clock, now)

	if _, live := vehicles[tripID]; live {
		if !haveScheduled {
			return Estimate{}, false
		}
		est.ETAMinutes = scheduledETA
		est.PredictionSource = SourceHybrid
		est.IsLive = true
		return est, true
	}

	if !e.cal.IsActive(trip.ServiceID) || !haveScheduled {
		return Estimate{}, false
	}
	est.ETAMinutes = scheduledETA
	est.PredictionSource = SourceSchedule
	est.IsLive = false
	return est, true
}

func (e *Engine) scheduledMinutes(clock string, now time.Time) (int, bool) {
	if clock == "" {
		return 0, false
	}
	scheduled, ok := gtfs.ParseServiceTime(clock, now, e.loc)
	if !ok || !scheduled.After(now) || !scheduled.Before(now.Add(scheduleWindow)) {
		return 0, false
	}
	return clampMinutes(scheduled.Sub(now).Minutes()), true
}

func (e *Engine) isUpcoming(preds map[string]map[string]int64, tripID, stopID, clock string, now time.Time) bool {
	if ts, ok := preds[tripID][stopID]; ok && ts > now.Unix()-int64(officialFreshness.Seconds()) {
		return true
	}
	_, ok := e.scheduledMinutes(clock, now)
	return ok
}

// tripsForCodes returns the union of trips serving any stop with one of
// the requested codes.
func (e *Engine) tripsForCodes(requested map[string]struct{}) map[string]struct{} {
	trips := map[string]struct{}{}
	for code := range requested {
		for _, stopID := range e.idx.StopIDsForCode(code) {
			for _, tripID := range e.idx.TripsForStop(stopID) {
				trips[tripID] = struct{}{}
			}
		}
	}
	return trips
}

// WeekTimetableForCode builds the full weekday/holiday timetable of a
// stop code from the service classification, independent of which day it
// is now.
func (e *Engine) WeekTimetableForCode(code string) (*WeekTimetable, error) {
	stopIDs := e.idx.StopIDsForCode(code)
	if len(stopIDs) == 0 {
		return nil, ErrStopCodeNotFound
	}
	tt := &WeekTimetable{
		Weekday: map[string]map[string]*TimetableEntry{},
		Holiday: map[string]map[string]*TimetableEntry{},
	}

	seen := map[string]struct{}{}
	for _, stopID := range stopIDs {
		for _, tripID := range e.idx.TripsForStop(stopID) {
			if _, dup := seen[tripID]; dup {
				continue
			}
			seen[tripID] = struct{}{}
			trip, ok := e.idx.Trip(tripID)
			if !ok {
				continue
			}
			var bucket map[string]map[string]*TimetableEntry
			switch {
			case e.cal.IsHoliday(trip.ServiceID):
				bucket = tt.Holiday
			case e.cal.IsWeekday(trip.ServiceID):
				bucket = tt.Weekday
			default:
				continue
			}
			route, ok := e.idx.Route(trip.RouteID)
			if !ok {
				continue
			}
			sched := e.idx.ScheduleForTrip(tripID)
			var clock string
			for _, sid := range stopIDs {
				if t, visits := sched[sid]; visits {
					clock = t
					break
				}
			}
			if clock == "" {
				continue
			}
			if bucket[route.ShortName] == nil {
				bucket[route.ShortName] = map[string]*TimetableEntry{}
			}
			entry := bucket[route.ShortName][trip.Headsign]
			if entry == nil {
				entry = &TimetableEntry{RouteType: route.Type}
				bucket[route.ShortName][trip.Headsign] = entry
			}
			entry.Times = append(entry.Times, clock)
		}
	}

	for _, bucket := range []map[string]map[string]*TimetableEntry{tt.Weekday, tt.Holiday} {
		for _, byDest := range bucket {
			for _, entry := range byDest {
				entry.Times = sortedUniqueClockTimes(entry.Times)
			}
		}
	}
	return tt, nil
}

// sortedUniqueClockTimes orders "HH:MM:SS" strings numerically so that
// after-midnight times above hour 24 sort after the evening ones.
func sortedUniqueClockTimes(times []string) []string {
	set := map[string]struct{}{}
	uniq := make([]string, 0, len(times))
	for _, t := range times {
		if _, dup := set[t]; dup {
			continue
		}
		set[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Slice(uniq, func(i, j int) bool {
		return clockSeconds(uniq[i]) < clockSeconds(uniq[j])
	})
	return uniq
}

func clockSeconds(clock string) int {
	parts := strings.Split(clock, ":")
	total := 0
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		total = total*60 + v
	}
	return total
}

// VehiclesForRoutes returns the live vehicles currently assigned to any
// of the named routes.
func (e *Engine) VehiclesForRoutes(ctx context.Context, names []string) []VehicleInfo {
	requested := map[string]struct{}{}
	for _, n := range names {
		if n != "" {
			requested[n] = struct{}{}
		}
	}
	snap := e.feed.EnsureFresh(ctx)
	out := []VehicleInfo{}
	for tripID, vehicle := range snap.VehicleByTrip() {
		trip, ok := e.idx.Trip(tripID)
		if !ok {
			continue
		}
		route, ok := e.idx.Route(trip.RouteID)
		if !ok {
			continue
		}
		if _, wanted := requested[route.ShortName]; !wanted {
			continue
		}
		pos := vehicle.GetPosition()
		out = append(out, VehicleInfo{
			Latitude:     float64(pos.GetLatitude()),
			Longitude:    float64(pos.GetLongitude()),
			TripID:       tripID,
			RouteName:    route.ShortName,
			RouteType:    route.Type,
			Destination:  trip.Headsign,
			NextStopID:   vehicle.GetStopId(),
			StopSequence: vehicle.GetCurrentStopSequence(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out
}

// TripShape returns the polyline of the trip's shape. A trip without a
// shape yields an empty polyline, not an error.
func (e *Engine) TripShape(tripID string) ([]gtfs.Point, error) {
	trip, ok := e.idx.Trip(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}
	pts, err := e.shapes.GetShape(trip.ShapeID)
	if err != nil {
		return nil, err
	}
	if pts == nil {
		pts = []gtfs.Point{}
	}
	return pts, nil
}

// TripStops returns the trip's ordered, enriched stop list.
func (e *Engine) TripStops(tripID string) ([]gtfs.DetailedStop, error) {
	visits := e.idx.StopOrderForTrip(tripID)
	if len(visits) == 0 {
		return nil, ErrTripNotFound
	}
	out := make([]gtfs.DetailedStop, 0, len(visits))
	for _, v := range visits {
		stop, ok := e.idx.Stop(v.StopID)
		if !ok {
			continue
		}
		out = append(out, gtfs.DetailedStop{
			StopID:       stop.StopID,
			Code:         stop.Code,
			Name:         stop.Name,
			Lat:          stop.Lat.Value,
			Lon:          stop.Lon.Value,
			Sequence:     v.Sequence,
			ServiceTypes: e.idx.CategoriesForStop(v.StopID),
		})
	}
	return out, nil
}

// AllRoutes lists every route, ordered by id.
func (e *Engine) AllRoutes() []*gtfs.Route {
	routes := e.idx.AllRoutes()
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })
	return routes
}

// AllStops lists every visited stop with its service categories, ordered
// by id.
func (e *Engine) AllStops() []StopRecord {
	stops := e.idx.AllStops()
	out := make([]StopRecord, 0, len(stops))
	for _, s := range stops {
		out = append(out, StopRecord{
			StopID:       s.StopID,
			Code:         s.Code,
			Name:         s.Name,
			Lat:          s.Lat.Value,
			Lon:          s.Lon.Value,
			ServiceTypes: e.idx.CategoriesForStop(s.StopID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StopID < out[j].StopID })
	return out
}

// LinesStructured lists every line with one representative trip per
// direction.
func (e *Engine) LinesStructured() []StructuredLine {
	trips := e.idx.AllTrips()
	sort.Slice(trips, func(i, j int) bool { return trips[i].TripID < trips[j].TripID })

	type lineAccum struct {
		line       StructuredLine
		directions map[string]struct{}
	}
	byRoute := map[string]*lineAccum{}
	var order []string
	for _, trip := range trips {
		acc, ok := byRoute[trip.RouteID]
		if !ok {
			route, found := e.idx.Route(trip.RouteID)
			if !found {
				continue
			}
			acc = &lineAccum{
				line: StructuredLine{
					LineName:      route.ShortName,
					TransportType: transportTypeForLine(route),
				},
				directions: map[string]struct{}{},
			}
			byRoute[trip.RouteID] = acc
			order = append(order, trip.RouteID)
		}
		dir := trip.DirectionID
		if _, dup := acc.directions[dir]; dup {
			continue
		}
		acc.directions[dir] = struct{}{}
		acc.line.Directions = append(acc.line.Directions, LineDirection{
			Headsign:      trip.Headsign,
			ExampleTripID: trip.TripID,
		})
	}

	out := make([]StructuredLine, 0, len(order))
	for _, routeID := range order {
		out = append(out, byRoute[routeID].line)
	}
	return out
}

// LineVariants returns the directional variants of a (line, mode) pair.
func (e *Engine) LineVariants(shortName, routeType string) ([]gtfs.LineVariant, error) {
	variants, ok := e.details.LineVariants(shortName, routeType)
	if !ok || len(variants) == 0 {
		return nil, ErrLineNotFound
	}
	return variants, nil
}

// StaticRouteView returns the precomputed shape and stop bundle of a
// trip.
func (e *Engine) StaticRouteView(tripID string) (*gtfs.RouteDetail, error) {
	detail, ok := e.details.TripDetail(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}
	return detail, nil
}

// RouteView combines the static bundle with the live vehicles of the
// trip's line.
func (e *Engine) RouteView(ctx context.Context, tripID string) (*RouteViewPayload, error) {
	detail, ok := e.details.TripDetail(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}
	trip, ok := e.idx.Trip(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}
	route, ok := e.idx.Route(trip.RouteID)
	if !ok {
		return nil, ErrTripNotFound
	}
	vehicles := e.VehiclesForRoutes(ctx, []string{route.ShortName})
	return &RouteViewPayload{
		Shape:    detail.Shape,
		Stops:    detail.Stops,
		Vehicles: vehicles,
	}, nil
}
