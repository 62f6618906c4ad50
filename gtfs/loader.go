package gtfs

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

// Dataset holds the raw startup tables. shapes.txt is intentionally absent:
// shapes are large and loaded lazily by ShapeCache on first access.
type Dataset struct {
	Routes        []*Route
	Trips         []*Trip
	Stops         []*Stop
	StopTimes     []*StopTime
	CalendarDates []*CalendarDate

	logger *zap.Logger
	path   string
}

var requiredTables = []string{
	"routes.txt",
	"trips.txt",
	"stops.txt",
	"stop_times.txt",
	"calendar_dates.txt",
}

// NewDataset creates an empty dataset bound to a logger.
func NewDataset(logger *zap.Logger) *Dataset {
	gocsv.SetCSVReader(lenientCSVReader)
	return &Dataset{logger: logger}
}

// LoadFromPath reads the required tables from a directory of GTFS text
// files. A missing or unreadable required table is fatal; row-level
// problems surface later, when the index is built.
func (ds *Dataset) LoadFromPath(path string) error {
	ds.path = path
	for _, name := range requiredTables {
		f, err := os.Open(filepath.Join(path, name))
		if err != nil {
			return fmt.Errorf("required table %s: %w", name, err)
		}
		err = ds.parseTable(name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	ds.logger.Info("static tables loaded",
		zap.Int("routes", len(ds.Routes)),
		zap.Int("trips", len(ds.Trips)),
		zap.Int("stops", len(ds.Stops)),
		zap.Int("stop_times", len(ds.StopTimes)),
		zap.Int("calendar_dates", len(ds.CalendarDates)),
	)
	return nil
}

// ShapesPath returns the location of the lazily read shapes table.
func (ds *Dataset) ShapesPath() string {
	return filepath.Join(ds.path, "shapes.txt")
}

func (ds *Dataset) parseTable(name string, contents io.Reader) error {
	switch name {
	case "routes.txt":
		return gocsv.Unmarshal(contents, &ds.Routes)
	case "trips.txt":
		return gocsv.Unmarshal(contents, &ds.Trips)
	case "stops.txt":
		return gocsv.Unmarshal(contents, &ds.Stops)
	case "stop_times.txt":
		return gocsv.Unmarshal(contents, &ds.StopTimes)
	case "calendar_dates.txt":
		return gocsv.Unmarshal(contents, &ds.CalendarDates)
	}
	return fmt.Errorf("unknown table %s", name)
}

// GTFS exporters pad or truncate optional columns inconsistently, so rows
// with a column count different from the header must not abort the file.
// The exports are also UTF-8 with a BOM, which would otherwise corrupt the
// first header name.
func lenientCSVReader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(skipBOM(in))
	r.FieldsPerRecord = -1
	return r
}

func skipBOM(in io.Reader) io.Reader {
	br := bufio.NewReader(in)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
