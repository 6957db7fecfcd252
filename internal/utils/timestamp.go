package utils

import "time"

const (
	clockLayout = "03:04 PM"
	dateLayout  = "January 02, 2006"
)

// FormatTimestamp renders created relative to now:
// "Today at 02:05 PM", "Yesterday at 02:05 PM" or "March 04, 2026 at 02:05 PM".
// created is converted into now's location before comparing calendar dates.
func FormatTimestamp(created, now time.Time) string {
	created = created.In(now.Location())
	clock := created.Format(clockLayout)

	switch {
	case sameDate(created, now):
		return "Today at " + clock
	case sameDate(created, now.AddDate(0, 0, -1)):
		return "Yesterday at " + clock
	default:
		return created.Format(dateLayout) + " at " + clock
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
