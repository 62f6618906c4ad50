package gtfs

import (
	"time"

	"go.uber.org/zap"
)

const calendarDateLayout = "20060102"

// Exception types of calendar_dates.txt rows.
const (
	exceptionAdded   = "1"
	exceptionRemoved = "2"
)

// ServiceCalendar resolves which service ids run today and, independently
// of today, classifies every service id appearing in calendar_dates into a
// weekday or holiday bucket. Resolved once at startup and read-only after.
type ServiceCalendar struct {
	active  map[string]struct{}
	weekday map[string]struct{}
	holiday map[string]struct{}
}

// ResolveServiceCalendar computes today's active service set. Services not
// named in today's exceptions default to the weekday pattern unless today
// itself is an exception-add date, in which case the holiday pattern is the
// baseline. Today's add/remove exceptions then override the baseline.
func ResolveServiceCalendar(ds *Dataset, today time.Time, logger *zap.Logger) *ServiceCalendar {
	cal := &ServiceCalendar{
		active:  map[string]struct{}{},
		weekday: map[string]struct{}{},
		holiday: map[string]struct{}{},
	}

	todayStr := today.Format(calendarDateLayout)
	todayIsHoliday := false
	for _, row := range ds.CalendarDates {
		if row.Date == todayStr && row.ExceptionType == exceptionAdded {
			todayIsHoliday = true
			break
		}
	}

	allServiceIDs := map[string]struct{}{}
	for _, t := range ds.Trips {
		if t.ServiceID != "" {
			allServiceIDs[t.ServiceID] = struct{}{}
		}
	}
	holidayIDs := map[string]struct{}{}
	for _, row := range ds.CalendarDates {
		if row.ExceptionType == exceptionAdded {
			holidayIDs[row.ServiceID] = struct{}{}
		}
	}

	if todayIsHoliday {
		for id := range holidayIDs {
			cal.active[id] = struct{}{}
		}
	} else {
		for id := range allServiceIDs {
			if _, holiday := holidayIDs[id]; !holiday {
				cal.active[id] = struct{}{}
			}
		}
	}

	for _, row := range ds.CalendarDates {
		if row.Date != todayStr {
			continue
		}
		switch row.ExceptionType {
		case exceptionAdded:
			cal.active[row.ServiceID] = struct{}{}
		case exceptionRemoved:
			delete(cal.active, row.ServiceID)
		}
	}

	// Weekday/holiday buckets depend on the exception row's own date, not
	// on today; they back the full-week timetable view.
	for _, row := range ds.CalendarDates {
		d, err := time.Parse(calendarDateLayout, row.Date)
		if err != nil {
			logger.Warn("skipping calendar_dates row with malformed date",
				zap.String("service_id", row.ServiceID),
				zap.String("date", row.Date))
			continue
		}
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			cal.holiday[row.ServiceID] = struct{}{}
		default:
			cal.weekday[row.ServiceID] = struct{}{}
		}
	}

	logger.Info("service calendar resolved",
		zap.Int("active", len(cal.active)),
		zap.Int("weekday", len(cal.weekday)),
		zap.Int("holiday", len(cal.holiday)),
		zap.Bool("holiday_schedule", todayIsHoliday),
	)
	return cal
}

// IsActive reports whether the service id runs today.
func (c *ServiceCalendar) IsActive(serviceID string) bool {
	_, ok := c.active[serviceID]
	return ok
}

// IsWeekday reports whether the service id belongs to the weekday bucket.
func (c *ServiceCalendar) IsWeekday(serviceID string) bool {
	_, ok := c.weekday[serviceID]
	return ok
}

// IsHoliday reports whether the service id belongs to the holiday bucket.
func (c *ServiceCalendar) IsHoliday(serviceID string) bool {
	_, ok := c.holiday[serviceID]
	return ok
}
