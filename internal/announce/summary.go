package announce

import (
	"fmt"
	"strings"
)

// Summarize renders one line per outcome followed by the total number of
// groups processed (not the number of successes).
func Summarize(outcomes []Outcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		switch o.Status {
		case Delivered:
			fmt.Fprintf(&b, "✅ Announced to #%s\n", o.Key)
		case NotFound:
			fmt.Fprintf(&b, "❌ Channel #%s not found.\n", o.Key)
		default:
			reason := "unknown error"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			fmt.Fprintf(&b, "⚠️ Failed to announce to #%s: %s\n", o.Key, reason)
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total Labs: %d", len(outcomes))
	return b.String()
}
