package utils

import (
	"fmt"
	"strconv"
	"time"
)

// Number renders an object or asset count with thousands separators,
// e.g. 1234567 as "1,234,567".
func Number(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, digits = "-", digits[1:]
	}

	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := 0; i < len(digits); i++ {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return sign + string(out)
}

// Duration renders an indexing run's wall time. Sub-second runs print "0s",
// runs under an hour keep tenths of a second, longer ones drop seconds.
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		m := d.Truncate(time.Minute)
		return fmt.Sprintf("%dm%.1fs", int(m.Minutes()), (d - m).Seconds())
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Rate renders count per second of elapsed with a K or M suffix. A zero
// elapsed time gives "0.00".
func Rate(count int64, elapsed time.Duration) string {
	var r float64
	if s := elapsed.Seconds(); s > 0 {
		r = float64(count) / s
	}
	switch {
	case r >= 1e6:
		return fmt.Sprintf("%.2fM", r/1e6)
	case r >= 1e3:
		return fmt.Sprintf("%.2fK", r/1e3)
	default:
		return fmt.Sprintf("%.2f", r)
	}
}

// Bytes renders a bundle or entry size in binary units, e.g. "512B",
// "1.5KiB" or "2.0GiB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGT"[exp])
}
