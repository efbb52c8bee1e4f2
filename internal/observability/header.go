package observability

import (
	"fmt"
	"net/http"
	"strings"
)

const serverTimingHeader = "Server-Timing"

// AppendServerTiming adds one Server-Timing metric to w. A non-positive
// duration is left out; a metric with neither duration nor description is
// not written at all.
func AppendServerTiming(w http.ResponseWriter, name string, durMs float64, desc string) {
	if entry, ok := serverTiming(name, durMs, desc); ok {
		w.Header().Add(serverTimingHeader, entry)
	}
}

func serverTiming(name string, durMs float64, desc string) (string, bool) {
	if durMs <= 0 && desc == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteString(name)
	if durMs > 0 {
		fmt.Fprintf(&b, ";dur=%.2f", durMs)
	}
	if desc != "" {
		fmt.Fprintf(&b, ";desc=%q", desc)
	}
	return b.String(), true
}

// SetIfPos sets key to ms with two decimals, replacing any earlier value.
// Non-positive values leave the header untouched.
func SetIfPos(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, fmt.Sprintf("%.2f", ms))
	}
}
