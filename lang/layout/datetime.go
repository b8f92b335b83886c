package layout

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Datetime formats are strftime directives, converted once through
// strftime.Layout into Go reference-time layouts and driven through the
// stdlib time package from there. The "%.f" spelling for fractional seconds
// is normalized to ".%f" before conversion.

// goLayouts converts a strftime format into the Go layout to parse and
// format with, plus a fallback layout with the fractional-seconds directive
// removed (empty when the format has none).
func goLayouts(format string) (full, noFrac string, err error) {
	norm := strings.ReplaceAll(format, "%.f", ".%f")
	full, err = strftime.Layout(norm)
	if err != nil {
		return "", "", err
	}
	if stripped := strings.ReplaceAll(norm, ".%f", ""); stripped != norm {
		noFrac, err = strftime.Layout(stripped)
		if err != nil {
			return "", "", err
		}
	}
	return full, noFrac, nil
}

// ParseDateTime parses s according to the strftime format and returns the
// timestamp in microseconds since the Unix epoch, in UTC. Formats without a
// timezone are taken as UTC; formats with only a time of day land on the
// epoch date.
func ParseDateTime(s, format string) (int64, error) {
	full, noFrac, err := goLayouts(format)
	if err != nil {
		return 0, err
	}
	t, err := time.Parse(full, s)
	if err != nil && noFrac != "" {
		// tolerate inputs without the fractional part
		t, err = time.Parse(noFrac, s)
	}
	if err != nil {
		return 0, err
	}
	if t.Year() == 0 {
		// time-of-day only: pin to the epoch date
		t = time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return t.UTC().UnixMicro(), nil
}

// FormatDateTime renders a microsecond timestamp with the supplied strftime
// format, in UTC. An unconvertible format falls back to RFC 3339.
func FormatDateTime(micros int64, format string) string {
	t := time.UnixMicro(micros).UTC()
	full, _, err := goLayouts(format)
	if err != nil {
		return t.Format(time.RFC3339Nano)
	}
	return t.Format(full)
}
