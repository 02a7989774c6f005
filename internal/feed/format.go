package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatViewCount abbreviates large counts the way video sites do: 999,
// 1.5K, 2K, 1.2M.
func FormatViewCount(n int64) string {
	switch {
	case n < 0:
		return "0"
	case n < 1_000:
		return strconv.FormatInt(n, 10)
	case n < 1_000_000:
		if s := abbreviate(n, 1_000); s != "1000" {
			return s + "K"
		}
		return "1M"
	default:
		return abbreviate(n, 1_000_000) + "M"
	}
}

func abbreviate(n, unit int64) string {
	if n%unit == 0 {
		return strconv.FormatInt(n/unit, 10)
	}
	return strings.TrimSuffix(strconv.FormatFloat(float64(n)/float64(unit), 'f', 1, 64), ".0")
}

// FormatRelativeTime renders the long form used on article cards
// ("3 hours ago", "1 year ago").
func FormatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	minutes := int(d / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days >= 365:
		return plural(days/365, "year")
	case days >= 30:
		return plural(days/30, "month")
	case days >= 7:
		return plural(days/7, "week")
	case days >= 1:
		return plural(days, "day")
	case hours >= 1:
		return plural(hours, "hour")
	case minutes >= 1:
		return plural(minutes, "minute")
	default:
		return "Just now"
	}
}

// FormatShortTime is the compact form used in the notification list.
func FormatShortTime(t, now time.Time) string {
	minutes := int(now.Sub(t) / time.Minute)
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh ago", minutes/60)
	default:
		return fmt.Sprintf("%dd ago", minutes/(24*60))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
