package restriction

import (
	"fmt"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"tillpoint/backend/internal/domain"
)

// AgeRestriction returns the minimum customer age for a department, if any.
func AgeRestriction(dept domain.Department) (int, bool) {
	if dept.AgeRestriction == nil || *dept.AgeRestriction <= 0 {
		return 0, false
	}
	return *dept.AgeRestriction, true
}

// SaleAllowedAt reports whether a department with the given time restriction
// may be sold at now. The restricted window is [start, end); when start > end
// the window wraps midnight. now must already be in the business's local time.
func SaleAllowedAt(tr *domain.TimeRestriction, now time.Time) bool {
	if tr == nil {
		return true
	}
	hour := now.Hour()
	if tr.StartHour <= tr.EndHour {
		return hour < tr.StartHour || hour >= tr.EndHour
	}
	return hour >= tr.EndHour && hour < tr.StartHour
}

func Validate(tr *domain.TimeRestriction) error {
	if tr == nil {
		return nil
	}
	if tr.StartHour < 0 || tr.StartHour > 23 || tr.EndHour < 0 || tr.EndHour > 23 {
		return fmt.Errorf("%w: restriction hours must be between 0 and 23", domain.ErrValidation)
	}
	return nil
}

// Window renders the restricted window for messages, e.g. "22:00-06:00".
func Window(tr domain.TimeRestriction) string {
	return fmt.Sprintf("%02d:00-%02d:00", tr.StartHour, tr.EndHour)
}

var defaultLocation atomic.Pointer[time.Location]

// SetDefaultLocation sets the zone used for businesses without a valid
// timezone of their own. An empty name means UTC.
func SetDefaultLocation(name string) error {
	if name == "" {
		defaultLocation.Store(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, name)
	}
	defaultLocation.Store(loc)
	return nil
}

// DefaultLocation returns the fallback zone, UTC unless SetDefaultLocation
// was called.
func DefaultLocation() *time.Location {
	if loc := defaultLocation.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// LocalTime converts now into the named IANA zone, falling back to the
// default location for an empty or unknown zone.
func LocalTime(now time.Time, timezone string) time.Time {
	if timezone == "" {
		return now.In(DefaultLocation())
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return now.In(DefaultLocation())
	}
	return now.In(loc)
}
