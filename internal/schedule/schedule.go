// Package schedule decides whether a subscriber is due for a digest on a given day.
package schedule

import (
	"time"

	"techdigest/internal/core"
)

// IsDueToday reports whether user should receive a digest on the calendar day of today.
// The result depends only on the user's frequency and delivery day and the date itself.
func IsDueToday(user core.User, today time.Time) bool {
	switch user.Frequency {
	case core.FrequencyDaily:
		return true
	case core.FrequencyWeekly:
		return today.Weekday() == user.EffectiveDeliveryDay()
	case core.FrequencyBiWeekly:
		return today.Weekday() == user.EffectiveDeliveryDay() && EpochWeek(today)%2 == 0
	case core.FrequencyMonthly:
		return today.Day() == 1
	default:
		return false
	}
}

// EpochWeek returns floor(days since 1970-01-01 / 7) for the calendar date of t.
// The date is taken in t's own location so a late-evening local time stays on its local day.
func EpochWeek(t time.Time) int64 {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := day.Unix() / 86400
	week := days / 7
	if days < 0 && days%7 != 0 {
		week--
	}
	return week
}

// NextDue returns the first day on or after from when user is due, searching up to limit days.
func NextDue(user core.User, from time.Time, limit int) (time.Time, bool) {
	day := from
	for i := 0; i < limit; i++ {
		if IsDueToday(user, day) {
			return day, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}
