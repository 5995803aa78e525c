package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses a clock-style duration, "HH:MM:SS" or "HH:MM",
// into a time.Duration. Hours run 00-23, minutes and seconds 00-59.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time format %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format %q", s)
		}
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], nums[2]
	if h > 23 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("time out of range %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatClock renders a non-negative duration as "H:MM:SS".
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}

// FormatSigned renders a duration as "H:MM:SS" with an explicit sign,
// used for plan-versus-actual differences. Zero carries no sign.
func FormatSigned(d time.Duration) string {
	switch {
	case d < 0:
		return "-" + FormatClock(-d)
	case d > 0:
		return "+" + FormatClock(d)
	default:
		return FormatClock(0)
	}
}
