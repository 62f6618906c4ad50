package arrivals

import (
	"sync"
	"time"
)

const (
	recentOfficialTTL = 90 * time.Second
	gpsArrivalTTL     = 300 * time.Second
)

type geofenceKey struct {
	TripID string
	StopID string
}

// geofenceState carries the two disambiguation caches of the estimation
// pass: recent-official suppresses a noisier GPS fallback right after an
// official arrival, gps-arrival makes a GPS-derived ETA of zero sticky
// until the vehicle clears the wider departure zone. Entries expire by
// TTL through an explicit sweep at the start of each pass, never through
// access patterns.
type geofenceState struct {
	mu             sync.Mutex
	recentOfficial map[geofenceKey]time.Time
	gpsArrival     map[geofenceKey]time.Time
}

func newGeofenceState() *geofenceState {
	return &geofenceState{
		recentOfficial: map[geofenceKey]time.Time{},
		gpsArrival:     map[geofenceKey]time.Time{},
	}
}

func (g *geofenceState) sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, ts := range g.recentOfficial {
		if now.Sub(ts) > recentOfficialTTL {
			delete(g.recentOfficial, k)
		}
	}
	for k, ts := range g.gpsArrival {
		if now.Sub(ts) > gpsArrivalTTL {
			delete(g.gpsArrival, k)
		}
	}
}

func (g *geofenceState) markOfficialArrival(key geofenceKey, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recentOfficial[key] = now
}

func (g *geofenceState) officialArrivedRecently(key geofenceKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.recentOfficial[key]
	return ok
}

func (g *geofenceState) markInArrivalZone(key geofenceKey, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gpsArrival[key] = now
}

func (g *geofenceState) inArrivalZone(key geofenceKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.gpsArrival[key]
	return ok
}

func (g *geofenceState) clearArrivalZone(key geofenceKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.gpsArrival, key)
}
