package panel

import (
	"fmt"
	"math"
	"time"
)

const (
	RecencyToday     = "Today"
	RecencyYesterday = "Yesterday"
	RecencyUnknown   = "N/A"
)

// Recency renders how long ago a loader was last seen, counted in whole
// calendar-day steps: ceil(|now-lastSeen| / 24h) - 1.
func Recency(lastSeen, now time.Time) string {
	if lastSeen.IsZero() {
		return RecencyUnknown
	}
	diff := now.Sub(lastSeen)
	if diff < 0 {
		diff = -diff
	}
	days := int(math.Ceil(float64(diff)/float64(24*time.Hour))) - 1
	switch {
	case days <= 0:
		return RecencyToday
	case days == 1:
		return RecencyYesterday
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
