package relay

import "time"

// WakeHour is the local hour at which quota-exhausted users become due again.
const WakeHour = 7

// RetryInterval is the spacing between cycles while quota remains.
const RetryInterval = time.Hour

// NextTrigger computes when a user should be processed again. Two states
// only: quota exhausted pushes to tomorrow's wake hour in the user's zone,
// anything else retries after the standard interval.
func NextTrigger(now time.Time, quotaExhausted bool, loc *time.Location) time.Time {
	if !quotaExhausted {
		return now.Add(RetryInterval)
	}
	local := now.In(loc)
	tomorrow := local.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), WakeHour, 0, 0, 0, loc)
}
