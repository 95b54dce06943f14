package backup

import (
	"strconv"
	"time"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count in base-1024 units with at most two
// decimals, e.g. "0 Bytes", "1.5 KB", "12.34 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(roundTo2(v), 'f', -1, 64) + " " + sizeUnits[i]
}

func roundTo2(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}

const displayLayout = "Jan 02, 2006, 03:04:05 PM"

// FormatTimestamp renders epoch millis for display only. A nil location
// means the process's local zone.
func FormatTimestamp(millis int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(millis).In(loc).Format(displayLayout)
}
