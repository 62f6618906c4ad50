package gtfs

import (
	"strconv"
	"strings"
	"time"
)

// ParseServiceTime converts a timetable clock string ("HH:MM:SS") into an
// absolute time on the given service day. Hours of 24 and above denote
// after-midnight departures of the previous service day and roll over.
func ParseServiceTime(clock string, serviceDay time.Time, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || m > 59 || s < 0 || s > 59 {
		return time.Time{}, false
	}
	dayStart := time.Date(serviceDay.Year(), serviceDay.Month(), serviceDay.Day(), 0, 0, 0, 0, loc)
	return dayStart.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second), true
}
