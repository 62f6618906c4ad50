package gtfs

import (
	"strconv"
	"strings"
)

// CSVInt is a lenient integer CSV field. A value that fails to parse does
// not abort the file; it is recorded as invalid so the row can be skipped
// with a warning at index-build time.
type CSVInt struct {
	Value int
	Valid bool
}

func (i *CSVInt) MarshalCSV() (string, error) {
	return strconv.Itoa(i.Value), nil
}

func (i *CSVInt) UnmarshalCSV(csv string) error {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		*i = CSVInt{}
		return nil
	}
	v, err := strconv.Atoi(csv)
	if err != nil {
		*i = CSVInt{}
		return nil
	}
	*i = CSVInt{Value: v, Valid: true}
	return nil
}

// CSVFloat is a lenient float64 CSV field, see CSVInt.
type CSVFloat struct {
	Value float64
	Valid bool
}

func (f *CSVFloat) MarshalCSV() (string, error) {
	return strconv.FormatFloat(f.Value, 'f', -1, 64), nil
}

func (f *CSVFloat) UnmarshalCSV(csv string) error {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		*f = CSVFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(csv, 64)
	if err != nil {
		*f = CSVFloat{}
		return nil
	}
	*f = CSVFloat{Value: v, Valid: true}
	return nil
}

// Route is a row of routes.txt.
type Route struct {
	RouteID   string `csv:"route_id" json:"route_id"`
	ShortName string `csv:"route_short_name" json:"route_short_name"`
	LongName  string `csv:"route_long_name" json:"route_long_name"`
	Type      string `csv:"route_type" json:"route_type"`
}

// Trip is a row of trips.txt.
type Trip struct {
	RouteID     string `csv:"route_id" json:"route_id"`
	ServiceID   string `csv:"service_id" json:"service_id"`
	TripID      string `csv:"trip_id" json:"trip_id"`
	Headsign    string `csv:"trip_headsign" json:"trip_headsign"`
	DirectionID string `csv:"direction_id" json:"direction_id"`
	ShapeID     string `csv:"shape_id" json:"shape_id"`
}

// Stop is a row of stops.txt.
type Stop struct {
	StopID string   `csv:"stop_id" json:"stop_id"`
	Code   string   `csv:"stop_code" json:"stop_code"`
	Name   string   `csv:"stop_name" json:"stop_name"`
	Lat    CSVFloat `csv:"stop_lat" json:"-"`
	Lon    CSVFloat `csv:"stop_lon" json:"-"`
}

// StopTime is a row of stop_times.txt.
type StopTime struct {
	TripID      string `csv:"trip_id"`
	ArrivalTime string `csv:"arrival_time"`
	StopID      string `csv:"stop_id"`
	Sequence    CSVInt `csv:"stop_sequence"`
}

// CalendarDate is a service exception row of calendar_dates.txt.
type CalendarDate struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

// ShapePoint is a row of shapes.txt.
type ShapePoint struct {
	ShapeID  string   `csv:"shape_id"`
	Lat      CSVFloat `csv:"shape_pt_lat"`
	Lon      CSVFloat `csv:"shape_pt_lon"`
	Sequence CSVInt   `csv:"shape_pt_sequence"`
}

// Point is a single polyline vertex, serialized as [lat, lon] to match the
// shape payload consumed by map clients.
type Point [2]float64

// Transport categories derived per stop from the routes serving it.
const (
	CategoryTram    = "TRAM"
	CategoryBus     = "BUS"
	CategoryTrolley = "TROLLEY"
	CategoryNight   = "NIGHT"
	CategoryMetro   = "METRO"
)

// GTFS route_type codes used by the feed.
const (
	RouteTypeTram    = "0"
	RouteTypeBus     = "3"
	RouteTypeTrolley = "11"
)

// CategoryForRoute maps a route to its rider-facing transport category.
// Night lines are flagged by the N prefix on the short name regardless of
// the vehicle type that operates them.
func CategoryForRoute(r *Route) string {
	if strings.HasPrefix(r.ShortName, "N") {
		return CategoryNight
	}
	switch r.Type {
	case RouteTypeTram:
		return CategoryTram
	case RouteTypeTrolley:
		return CategoryTrolley
	case RouteTypeBus:
		return CategoryBus
	}
	return ""
}
