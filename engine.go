package arrivals

import (
	"context"
	"math"
	"sort"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"

	"github.com/sofiatransit/arrivals/gtfs"
	"github.com/sofiatransit/arrivals/realtime"
)

// Prediction source tags, in decreasing order of trust.
const (
	SourceOfficial = "official"
	SourceHybrid   = "hybrid"
	SourceSchedule = "schedule"
)

const (
	// Geofence radii around a stop. Arrival is smaller than departure on
	// purpose: the gap is the hysteresis band that keeps a loitering
	// vehicle's ETA from flapping between 0 and a projection.
	arrivalZoneMeters       = 50.0
	departureZoneMeters     = 70.0
	hybridTriggerZoneMeters = 20.0

	officialFreshness = 60 * time.Second
	scheduleWindow    = 2 * time.Hour

	// Reported speeds at or below this are GPS noise from a stationary
	// vehicle; the per-mode average is used instead.
	minReportedSpeedMPS = 1.0
	fallbackSpeedMPS    = 5.5
)

var averageSpeedMPS = map[string]float64{
	gtfs.RouteTypeTram:    6.9,
	gtfs.RouteTypeBus:     5.5,
	gtfs.RouteTypeTrolley: 6.0,
}

// Estimate is one ranked arrival row. Built fresh per request, never
// cached.
type Estimate struct {
	TripID           string   `json:"trip_id"`
	RouteName        string   `json:"route_name"`
	RouteType        string   `json:"route_type"`
	Destination      string   `json:"destination"`
	ETAMinutes       int      `json:"eta_minutes"`
	PredictionSource string   `json:"prediction_source"`
	IsLive           bool     `json:"is_live"`
	Alerts           []string `json:"alerts"`
}

// Engine fuses the three arrival signal sources per trip and stop. All
// static collaborators are read-only; the only state the engine mutates
// is its geofence caches.
type Engine struct {
	idx     *gtfs.ScheduleIndex
	cal     *gtfs.ServiceCalendar
	feed    *realtime.FeedCache
	shapes  *gtfs.ShapeCache
	details *gtfs.RouteDetailCache
	loc     *time.Location
	logger  *zap.Logger
	metrics *Metrics

	geo   *geofenceState
	clock func() time.Time
}

func NewEngine(
	idx *gtfs.ScheduleIndex,
	cal *gtfs.ServiceCalendar,
	feed *realtime.FeedCache,
	shapes *gtfs.ShapeCache,
	details *gtfs.RouteDetailCache,
	loc *time.Location,
	logger *zap.Logger,
	metrics *Metrics,
) *Engine {
	return &Engine{
		idx:     idx,
		cal:     cal,
		feed:    feed,
		shapes:  shapes,
		details: details,
		loc:     loc,
		logger:  logger,
		metrics: metrics,
		geo:     newGeofenceState(),
		clock:   time.Now,
	}
}

// EstimateForStop returns the ranked arrival estimates for a stop id,
// considering every co-located platform sharing its stop code. Live
// estimates come first, then ascending ETA; a trip appears at most once.
func (e *Engine) EstimateForStop(ctx context.Context, stopID string) ([]Estimate, error) {
	if _, ok := e.idx.Stop(stopID); !ok {
		return nil, ErrStopNotFound
	}
	snap := e.feed.EnsureFresh(ctx)
	alerts := CorrelateAlerts(snap, e.idx)
	preds := snap.ArrivalPredictions()
	vehicles := snap.VehicleByTrip()

	now := e.clock().In(e.loc)
	e.geo.sweep(now)

	physical := e.idx.PhysicalStopIDs(stopID)
	seen := map[string]struct{}{}
	out := []Estimate{}
	for _, sid := range physical {
		for _, tripID := range e.idx.TripsForStop(sid) {
			if _, dup := seen[tripID]; dup {
				continue
			}
			seen[tripID] = struct{}{}
			est, ok := e.estimateTrip(tripID, physical, preds, vehicles, now)
			if !ok {
				continue
			}
			est.Alerts = alerts[est.RouteName+"-"+est.RouteType]
			e.countEstimate(est.PredictionSource)
			out = append(out, est)
		}
	}
	sortEstimates(out)
	return out, nil
}

func (e *Engine) estimateTrip(
	tripID string,
	physical []string,
	preds map[string]map[string]int64,
	vehicles map[string]*gtfsrtpb.VehiclePosition,
	now time.Time,
) (Estimate, bool) {
	trip, ok := e.idx.Trip(tripID)
	if !ok {
		return Estimate{}, false
	}
	route, ok := e.idx.Route(trip.RouteID)
	if !ok {
		return Estimate{}, false
	}
	sched := e.idx.ScheduleForTrip(tripID)
	var relevant string
	for _, sid := range physical {
		if _, visits := sched[sid]; visits {
			relevant = sid
			break
		}
	}
	if relevant == "" {
		return Estimate{}, false
	}

	est := Estimate{
		TripID:      tripID,
		RouteName:   route.ShortName,
		RouteType:   route.Type,
		Destination: trip.Headsign,
	}
	key := geofenceKey{TripID: tripID, StopID: relevant}

	if ts, ok := preds[tripID][relevant]; ok && ts > now.Unix()-int64(officialFreshness.Seconds()) {
		est.ETAMinutes = clampMinutes(float64(ts-now.Unix()) / 60)
		est.PredictionSource = SourceOfficial
		est.IsLive = true
		if est.ETAMinutes == 0 {
			e.geo.markOfficialArrival(key, now)
		}
		return est, true
	}

	if vehicle, live := vehicles[tripID]; live {
		// An official ETA of zero was reported moments ago; a GPS reading
		// for the same pair would double-report the arrival through a
		// noisier channel.
		if e.geo.officialArrivedRecently(key) {
			return Estimate{}, false
		}
		hybrid, produced, dropped := e.hybridEstimate(est, key, tripID, route, vehicle, relevant, now)
		if dropped {
			return Estimate{}, false
		}
		if produced {
			return hybrid, true
		}
	}

	return e.scheduleEstimate(est, trip, sched[relevant], now)
}

// hybridEstimate runs the 3-zone geofence over the vehicle's live
// position. dropped means the trip must not be reported at all this
// cycle, not even from the timetable.
func (e *Engine) hybridEstimate(
	est Estimate,
	key geofenceKey,
	tripID string,
	route *gtfs.Route,
	vehicle *gtfsrtpb.VehiclePosition,
	targetStopID string,
	now time.Time,
) (Estimate, bool, bool) {
	target, haveTarget := e.idx.Stop(targetStopID)
	pos := vehicle.GetPosition()
	havePos := pos != nil

	distToTarget := -1.0
	if havePos && haveTarget {
		distToTarget = gtfs.HaversineMeters(
			float64(pos.GetLatitude()), float64(pos.GetLongitude()),
			target.Lat.Value, target.Lon.Value)
	}
	haveDist := distToTarget >= 0

	wasInside := e.geo.inArrivalZone(key)
	if wasInside && haveDist && distToTarget > departureZoneMeters {
		e.geo.clearArrivalZone(key)
		return Estimate{}, false, true
	}
	if haveDist && distToTarget < arrivalZoneMeters {
		est.ETAMinutes = 0
		est.PredictionSource = SourceHybrid
		est.IsLive = true
		if !wasInside {
			e.geo.markInArrivalZone(key, now)
		}
		return est, true, false
	}
	if wasInside {
		est.ETAMinutes = 0
		est.PredictionSource = SourceHybrid
		est.IsLive = true
		return est, true, false
	}

	// Projection is trusted only when the vehicle is sitting at a stop
	// that precedes the target in sequence order; anything else would be
	// a noisy mid-route extrapolation.
	if vehicle.StopId == nil || !havePos || !haveDist {
		return Estimate{}, false, false
	}
	nextStopID := vehicle.GetStopId()
	targetSeq, okTarget := e.idx.SequenceOfStop(tripID, targetStopID)
	nextSeq, okNext := e.idx.SequenceOfStop(tripID, nextStopID)
	if !okTarget || !okNext || nextSeq >= targetSeq {
		return Estimate{}, false, false
	}
	next, ok := e.idx.Stop(nextStopID)
	if !ok {
		return Estimate{}, false, false
	}
	distToNext := gtfs.HaversineMeters(
		float64(pos.GetLatitude()), float64(pos.GetLongitude()),
		next.Lat.Value, next.Lon.Value)
	if distToNext >= hybridTriggerZoneMeters {
		return Estimate{}, false, false
	}

	speed := effectiveSpeed(route, pos)
	est.ETAMinutes = clampMinutes(distToTarget / speed / 60)
	est.PredictionSource = SourceHybrid
	est.IsLive = true
	return est, true, false
}

func (e *Engine) scheduleEstimate(est Estimate, trip *gtfs.Trip, clock string, now time.Time) (Estimate, bool) {
	if !e.cal.IsActive(trip.ServiceID) || clock == "" {
		return Estimate{}, false
	}
	scheduled, ok := gtfs.ParseServiceTime(clock, now, e.loc)
	if !ok {
		return Estimate{}, false
	}
	if !scheduled.After(now) || !scheduled.Before(now.Add(scheduleWindow)) {
		return Estimate{}, false
	}
	est.ETAMinutes = clampMinutes(scheduled.Sub(now).Minutes())
	est.PredictionSource = SourceSchedule
	est.IsLive = false
	return est, true
}

func effectiveSpeed(route *gtfs.Route, pos *gtfsrtpb.Position) float64 {
	if pos.Speed != nil && float64(pos.GetSpeed()) > minReportedSpeedMPS {
		return float64(pos.GetSpeed())
	}
	if v, ok := averageSpeedMPS[route.Type]; ok {
		return v
	}
	return fallbackSpeedMPS
}

func clampMinutes(minutes float64) int {
	m := int(math.Round(minutes))
	if m < 0 {
		return 0
	}
	return m
}

func sortEstimates(list []Estimate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsLive != list[j].IsLive {
			return list[i].IsLive
		}
		return list[i].ETAMinutes < list[j].ETAMinutes
	})
}

func (e *Engine) countEstimate(source string) {
	if e.metrics != nil {
		e.metrics.EstimateProduced(source)
	}
}
