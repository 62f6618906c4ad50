// Package gtfs loads the static timetable tables and exposes the
// read-only schedule index, service calendar and lazily built
// shape/route-detail caches on top of them.
package gtfs
