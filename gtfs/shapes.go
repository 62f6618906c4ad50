package gtfs

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

const earthRadiusMeters = 6371000

// HaversineMeters returns the great-circle distance between two
// coordinates using the mean Earth radius.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// ShapeCache memoizes polylines read on demand from shapes.txt. The table
// is too large to hold unparsed rows in memory at startup, so each shape is
// materialized on first access and kept for the process lifetime.
type ShapeCache struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	shapes map[string][]Point
}

// NewShapeCache creates a cache reading from the given shapes.txt path.
func NewShapeCache(path string, logger *zap.Logger) *ShapeCache {
	return &ShapeCache{
		path:   path,
		logger: logger,
		shapes: map[string][]Point{},
	}
}

// GetShape returns the ordered polyline for a shape id. Check, lock,
// re-check: concurrent first callers never parse the same shape twice and
// never observe a partially built polyline.
func (sc *ShapeCache) GetShape(shapeID string) ([]Point, error) {
	if shapeID == "" {
		return nil, nil
	}
	sc.mu.RLock()
	pts, ok := sc.shapes[shapeID]
	sc.mu.RUnlock()
	if ok {
		return pts, nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if pts, ok := sc.shapes[shapeID]; ok {
		return pts, nil
	}
	pts, err := sc.scanShape(shapeID)
	if err != nil {
		return nil, err
	}
	if len(pts) > 0 {
		sc.shapes[shapeID] = pts
	}
	return pts, nil
}

func (sc *ShapeCache) scanShape(shapeID string) ([]Point, error) {
	f, err := os.Open(sc.path)
	if err != nil {
		return nil, fmt.Errorf("open shapes table: %w", err)
	}
	defer f.Close()

	var rows []*ShapePoint
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("parse shapes table: %w", err)
	}

	matched := make([]*ShapePoint, 0, 64)
	for _, row := range rows {
		if row.ShapeID != shapeID {
			continue
		}
		if !row.Lat.Valid || !row.Lon.Valid || !row.Sequence.Valid {
			sc.logger.Warn("skipping malformed shapes row",
				zap.String("shape_id", shapeID))
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Sequence.Value < matched[j].Sequence.Value
	})

	pts := make([]Point, len(matched))
	for i, row := range matched {
		pts[i] = Point{row.Lat.Value, row.Lon.Value}
	}
	if len(pts) > 0 {
		sc.logger.Debug("shape materialized",
			zap.String("shape_id", shapeID),
			zap.Int("points", len(pts)))
	}
	return pts, nil
}
