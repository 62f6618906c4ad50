// Package arrivals fuses official realtime predictions, live vehicle
// positions and the static timetable into per-stop arrival estimates for
// the Sofia urban transit network, and serves them over a JSON HTTP API.
package arrivals
