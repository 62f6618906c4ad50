package gtfs

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DetailedStop is a stop record enriched for the route-detail payloads.
type DetailedStop struct {
	StopID       string   `json:"stop_id"`
	Code         string   `json:"stop_code"`
	Name         string   `json:"stop_name"`
	Lat          float64  `json:"stop_lat"`
	Lon          float64  `json:"stop_lon"`
	Sequence     int      `json:"stop_sequence"`
	ServiceTypes []string `json:"service_types"`
}

// RouteDetail bundles a trip's shape with its enriched ordered stop list.
type RouteDetail struct {
	Shape []Point        `json:"shape"`
	Stops []DetailedStop `json:"stops"`
}

// LineVariant is one directional variation of a line: a representative
// trip, its headsign, shape and stop list.
type LineVariant struct {
	Direction    string         `json:"direction"`
	SampleTripID string         `json:"trip_id_sample"`
	Shape        []Point        `json:"shape"`
	Stops        []DetailedStop `json:"stops"`
}

type lineKey struct {
	ShortName string
	RouteType string
}

// RouteDetailCache lazily materializes the per-trip detail bundles and the
// per-(line,mode) directional variants. Both are pure functions of the
// schedule index and the shape cache, built once on first use and never
// invalidated while the process runs.
type RouteDetailCache struct {
	idx    *ScheduleIndex
	shapes *ShapeCache
	logger *zap.Logger

	mu           sync.RWMutex
	details      map[string]*RouteDetail
	byLine       map[lineKey][]LineVariant
	detailsBuilt bool
	byLineBuilt  bool
}

// NewRouteDetailCache creates an unbuilt cache over the given static data.
func NewRouteDetailCache(idx *ScheduleIndex, shapes *ShapeCache, logger *zap.Logger) *RouteDetailCache {
	return &RouteDetailCache{
		idx:     idx,
		shapes:  shapes,
		logger:  logger,
		details: map[string]*RouteDetail{},
		byLine:  map[lineKey][]LineVariant{},
	}
}

// TripDetail returns the detail bundle for a trip, building the cache on
// first access.
func (c *RouteDetailCache) TripDetail(tripID string) (*RouteDetail, bool) {
	c.ensureDetails()
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.details[tripID]
	return d, ok
}

// LineVariants returns the directional variants for a (line, mode) pair,
// building the cache on first access.
func (c *RouteDetailCache) LineVariants(shortName, routeType string) ([]LineVariant, bool) {
	c.ensureByLine()
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byLine[lineKey{ShortName: shortName, RouteType: routeType}]
	return v, ok
}

func (c *RouteDetailCache) ensureDetails() {
	c.mu.RLock()
	built := c.detailsBuilt
	c.mu.RUnlock()
	if built {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detailsBuilt {
		return
	}
	for _, trip := range c.idx.AllTrips() {
		if trip.ShapeID == "" {
			continue
		}
		shape, err := c.shapes.GetShape(trip.ShapeID)
		if err != nil {
			c.logger.Warn("shape unavailable for trip detail",
				zap.String("trip_id", trip.TripID), zap.Error(err))
			continue
		}
		if len(shape) == 0 {
			continue
		}
		stops := c.enrichedStops(trip.TripID)
		if len(stops) == 0 {
			continue
		}
		c.details[trip.TripID] = &RouteDetail{Shape: shape, Stops: stops}
	}
	c.detailsBuilt = true
	c.logger.Info("trip detail cache built", zap.Int("trips", len(c.details)))
}

func (c *RouteDetailCache) ensureByLine() {
	c.mu.RLock()
	built := c.byLineBuilt
	c.mu.RUnlock()
	if built {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byLineBuilt {
		return
	}

	lineTrips := map[lineKey][]*Trip{}
	for _, trip := range c.idx.AllTrips() {
		route, ok := c.idx.Route(trip.RouteID)
		if !ok || route.ShortName == "" || route.Type == "" {
			continue
		}
		k := lineKey{ShortName: route.ShortName, RouteType: route.Type}
		lineTrips[k] = append(lineTrips[k], trip)
	}

	for k, trips := range lineTrips {
		// The two most common headsigns by trip count are the line's
		// representative directions.
		counts := map[string]int{}
		for _, t := range trips {
			counts[t.Headsign]++
		}
		type hc struct {
			headsign string
			n        int
		}
		ranked := make([]hc, 0, len(counts))
		for h, n := range counts {
			ranked = append(ranked, hc{h, n})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].n != ranked[j].n {
				return ranked[i].n > ranked[j].n
			}
			return ranked[i].headsign < ranked[j].headsign
		})
		main := map[string]struct{}{}
		for i, r := range ranked {
			if i >= 2 {
				break
			}
			main[r.headsign] = struct{}{}
		}

		// Deterministic variant order regardless of map iteration.
		sort.Slice(trips, func(i, j int) bool { return trips[i].TripID < trips[j].TripID })

		seenShapes := map[string]struct{}{}
		for _, trip := range trips {
			if _, ok := main[trip.Headsign]; !ok {
				continue
			}
			if trip.ShapeID == "" {
				continue
			}
			if _, dup := seenShapes[trip.ShapeID]; dup {
				continue
			}
			shape, err := c.shapes.GetShape(trip.ShapeID)
			if err != nil || len(shape) == 0 {
				continue
			}
			stops := c.enrichedStops(trip.TripID)
			if len(stops) == 0 {
				continue
			}
			c.byLine[k] = append(c.byLine[k], LineVariant{
				Direction:    trip.Headsign,
				SampleTripID: trip.TripID,
				Shape:        shape,
				Stops:        stops,
			})
			seenShapes[trip.ShapeID] = struct{}{}
		}
	}
	c.byLineBuilt = true
	c.logger.Info("line variant cache built", zap.Int("lines", len(c.byLine)))
}

// enrichedStops expects c.mu to be held for writing.
func (c *RouteDetailCache) enrichedStops(tripID string) []DetailedStop {
	visits := c.idx.StopOrderForTrip(tripID)
	out := make([]DetailedStop, 0, len(visits))
	for _, v := range visits {
		stop, ok := c.idx.Stop(v.StopID)
		if !ok {
			continue
		}
		out = append(out, DetailedStop{
			StopID:       stop.StopID,
			Code:         stop.Code,
			Name:         stop.Name,
			Lat:          stop.Lat.Value,
			Lon:          stop.Lon.Value,
			Sequence:     v.Sequence,
			ServiceTypes: c.idx.CategoriesForStop(v.StopID),
		})
	}
	return out
}
