package toolforge

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// ValidateSchedule checks a five-field cron schedule and returns its next run after now, in UTC.
func ValidateSchedule(schedule string, now time.Time) (time.Time, error) {
	if len(strings.Fields(schedule)) != 5 {
		return time.Time{}, fmt.Errorf("schedule %q must have exactly five fields (minute hour day month weekday)", schedule)
	}

	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %q is invalid: %w", schedule, err)
	}

	next := expr.Next(now.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", schedule)
	}
	return next, nil
}
