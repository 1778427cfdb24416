package tracking

import (
	"time"

	"fvm/db/db"
)

// ProgressInfo is the elapsed/remaining view of an Active visit.
type ProgressInfo struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// Progress computes elapsed time since the actual start and time remaining
// until the scheduled end. Remaining counts down against the scheduled end
// wall-clock time, not against the planned duration from the actual start,
// and goes negative once the visit overruns. Elapsed is zero until the visit
// has actually started.
func Progress(rec *db.VisitRecord, now time.Time) ProgressInfo {
	var info ProgressInfo
	if rec.ActualStart != nil {
		info.Elapsed = now.Sub(*rec.ActualStart)
	}
	info.Remaining = rec.ScheduledEnd.Sub(now)
	return info
}
