package gtfs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{name: "zero distance", lat1: 42.69, lon1: 23.33, lat2: 42.69, lon2: 23.33, want: 0, tolerance: 0.01},
		// One degree of latitude is ~111.19 km on the mean-radius sphere.
		{name: "one degree of latitude", lat1: 42, lon1: 23, lat2: 43, lon2: 23, want: 111195, tolerance: 10},
		{name: "short hop", lat1: 42.6900, lon1: 23.3300, lat2: 42.6909, lon2: 23.3300, want: 100, tolerance: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func writeShapesFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shapes.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const shapesFixture = `shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence
SH1,42.6900,23.3300,2
SH1,42.6800,23.3200,1
SH1,42.7000,23.3400,3
SH2,42.0000,23.0000,1
SH1,bad,23.0,4
`

func TestGetShapeOrdersBySequence(t *testing.T) {
	gocsvSetupOnce(t)
	sc := NewShapeCache(writeShapesFile(t, shapesFixture), zap.NewNop())

	pts, err := sc.GetShape("SH1")
	require.NoError(t, err)
	require.Len(t, pts, 3, "malformed row dropped, rest ordered")
	assert.Equal(t, Point{42.68, 23.32}, pts[0])
	assert.Equal(t, Point{42.69, 23.33}, pts[1])
	assert.Equal(t, Point{42.70, 23.34}, pts[2])
}

func TestGetShapeMemoizesAndIsConcurrencySafe(t *testing.T) {
	gocsvSetupOnce(t)
	path := writeShapesFile(t, shapesFixture)
	sc := NewShapeCache(path, zap.NewNop())

	var wg sync.WaitGroup
	results := make([][]Point, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pts, err := sc.GetShape("SH1")
			assert.NoError(t, err)
			results[i] = pts
		}(i)
	}
	wg.Wait()
	for _, pts := range results {
		assert.Len(t, pts, 3)
	}

	// Later lookups never reread the file.
	require.NoError(t, os.Remove(path))
	pts, err := sc.GetShape("SH1")
	require.NoError(t, err)
	assert.Len(t, pts, 3)
}

func TestGetShapeUnknownAndEmptyID(t *testing.T) {
	gocsvSetupOnce(t)
	sc := NewShapeCache(writeShapesFile(t, shapesFixture), zap.NewNop())

	pts, err := sc.GetShape("NOPE")
	require.NoError(t, err)
	assert.Empty(t, pts)

	pts, err = sc.GetShape("")
	require.NoError(t, err)
	assert.Nil(t, pts)
}

// gocsvSetupOnce installs the lenient reader the loader normally sets.
func gocsvSetupOnce(t *testing.T) {
	t.Helper()
	NewDataset(zap.NewNop())
}
