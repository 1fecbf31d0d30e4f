package motion

import "log"

// Logger is the package-level logger used for quality events (spec.md §7:
// "Quality events are counted and optionally reported"), matching the
// teacher's pattern of logging directly with the standard log package
// (tmc2209/tmc2209.go, tmc2209/utils.go) rather than taking a structured
// logging dependency. Nil-safe: set to nil to silence quality-event
// logging entirely.
var Logger = log.Default()

func logf(format string, args ...any) {
	if Logger == nil {
		return
	}
	Logger.Printf(format, args...)
}
