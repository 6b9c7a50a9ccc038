package util

import (
	"fmt"
	"strings"
	"time"
)

// FormatTime formats t using a template with placeholders.
//
// Supported placeholders:
//   - YYYY: 4-digit year
//   - YY: 2-digit year
//   - MM: 2-digit month (01-12)
//   - DD: 2-digit day (01-31)
//   - hh: 2-digit hour (00-23)
//   - mm: 2-digit minute (00-59)
//   - ss: 2-digit second (00-59)
//
// A zero time formats as an empty string.
//
// Example:
//
//	FormatTime(t, "YYYY-MM-DD hh:mm") // "2023-11-10 00:00"
func FormatTime(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	r := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"hh", "15",
		"mm", "04",
		"ss", "05",
	)
	return t.UTC().Format(r.Replace(tpl))
}

// HumanSeconds renders a whole number of seconds as "1 hour", "3 minutes",
// "5 seconds", rounding down to the largest unit.
func HumanSeconds(secs int) string {
	d := time.Duration(secs) * time.Second
	switch {
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	case d >= time.Minute:
		return plural(int(d.Minutes()), "minute")
	}
	return plural(secs, "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
