package arrivals

import "errors"

// Not-found sentinels separate 404-class failures from internal ones at
// the HTTP boundary.
var (
	ErrStopNotFound     = errors.New("stop not found")
	ErrStopCodeNotFound = errors.New("stop code not found")
	ErrTripNotFound     = errors.New("trip not found")
	ErrLineNotFound     = errors.New("line not found")
)
