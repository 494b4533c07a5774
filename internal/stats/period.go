package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Group is the bucket size for historical stats.
type Group string

const (
	Hour  Group = "hour"
	Day   Group = "day"
	Week  Group = "week"
	Month Group = "month"
)

var Groups = []Group{Hour, Day, Week, Month}

func ParseGroup(s string) (Group, error) {
	for _, g := range Groups {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group %q", s)
}

// View is the title-case report name ("Hourly", "Daily", ...).
func (g Group) View() string {
	switch g {
	case Hour:
		return "Hourly"
	case Day:
		return "Daily"
	case Week:
		return "Weekly"
	case Month:
		return "Monthly"
	}
	return string(g)
}

// lookback is how far back Grouped reads tickets.
func (g Group) lookback(now time.Time) time.Time {
	switch g {
	case Hour:
		return now.AddDate(0, 0, -2)
	case Day:
		return now.AddDate(0, 0, -7)
	case Week:
		return now.AddDate(0, 0, -28)
	default:
		return now.AddDate(0, 0, -90)
	}
}

// exportWindow is how far back an export reaches.
func (g Group) exportWindow(now time.Time) time.Time {
	switch g {
	case Hour:
		return now.AddDate(0, 0, -2)
	case Day:
		return now.AddDate(0, 0, -7)
	case Week:
		return now.AddDate(0, 0, -30)
	default:
		return now.AddDate(0, 0, -90)
	}
}

const (
	hourKey  = "2006-01-02 15:00"
	dayKey   = "2006-01-02"
	monthKey = "2006-01"
)

// Key buckets a local time: "2024-01-14 23:00", "2024-01-14", "2024-W02" or
// "2024-01".
func Key(g Group, local time.Time) string {
	switch g {
	case Hour:
		return local.Format(hourKey)
	case Day:
		return local.Format(dayKey)
	case Week:
		y, w := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return local.Format(monthKey)
	}
}

// Start returns the local instant a period key begins at.
func Start(g Group, key string, loc *time.Location) (time.Time, error) {
	switch g {
	case Hour:
		return time.ParseInLocation(hourKey, key, loc)
	case Day:
		return time.ParseInLocation(dayKey, key, loc)
	case Week:
		ys, ws, ok := strings.Cut(key, "-W")
		y, yerr := strconv.Atoi(ys)
		w, werr := strconv.Atoi(ws)
		if !ok || yerr != nil || werr != nil || w < 1 || w > 53 {
			return time.Time{}, fmt.Errorf("parse week %q: want YYYY-Www", key)
		}
		return isoWeekStart(y, w, loc), nil
	case Month:
		return time.ParseInLocation(monthKey, key, loc)
	}
	return time.Time{}, fmt.Errorf("unknown group %q", g)
}

// isoWeekStart returns the Monday that opens ISO week w of year y. January 4th
// always falls in week 1.
func isoWeekStart(y, w int, loc *time.Location) time.Time {
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(w-1)*7)
}

// Label renders a period key for display.
func Label(g Group, key string) string {
	start, err := Start(g, key, time.UTC)
	if err != nil {
		return key
	}
	switch g {
	case Hour:
		end := start.Add(time.Hour)
		return fmt.Sprintf("%s | %s - %s", start.Format("Jan 02, 2006"), start.Format("3PM"), end.Format("3PM"))
	case Day:
		return start.Format("Mon | Jan 02, 2006")
	case Week:
		return fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), start.AddDate(0, 0, 6).Format("Jan 02, 2006"))
	default:
		return start.Format("Jan 2006")
	}
}

// Placeholder stands in for a time when there is nothing to show.
const Placeholder = "--:--"

// FormatSeconds renders whole seconds as m:ss.
func FormatSeconds(s int64) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
