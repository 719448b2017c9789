package timing

import "errors"

// ErrInvalidSchedule is returned when an event is scheduled before the
// current time, with a negative delay, or at a time that is not a number.
var ErrInvalidSchedule = errors.New("timing: invalid schedule")
