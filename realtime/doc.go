// Package realtime maintains the periodically refreshed snapshot of the
// three upstream GTFS-Realtime channels: trip updates, vehicle positions
// and service alerts.
package realtime
