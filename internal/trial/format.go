package trial

import (
	"fmt"
	"time"
)

// FormatMMSS renders a duration as zero-padded minutes and seconds,
// floor-truncated to whole seconds. Negative durations clamp to "00:00".
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
