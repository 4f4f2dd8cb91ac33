package domain

import "time"

// Aggregate reduces access rows to usage metrics as of asOf. A row counts
// toward ActiveUsers when its status is active and it was last active within
// window before asOf. LastActivityDays is measured from the most recent
// last_active_at over all rows regardless of status.
func Aggregate(rows []ToolAccess, asOf time.Time, window time.Duration) UsageMetrics {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}

	metrics := UsageMetrics{
		TotalUsers:       len(rows),
		LastActivityDays: NoActivityDays,
		AsOf:             asOf,
	}
	if len(rows) > 0 {
		metrics.ToolID = rows[0].ToolID
	}

	cutoff := asOf.Add(-window)
	var latest *time.Time
	for i := range rows {
		last := rows[i].LastActiveAt
		if last == nil {
			continue
		}
		if latest == nil || last.After(*latest) {
			latest = last
		}
		if rows[i].Status == AccessStatusActive && !last.Before(cutoff) {
			metrics.ActiveUsers++
		}
	}

	if latest != nil {
		metrics.LastActivityDays = daysBetween(*latest, asOf)
	}
	return metrics
}

// daysBetween returns whole days elapsed from then to now, 0 when then is in
// the future.
func daysBetween(then, now time.Time) int {
	if !now.After(then) {
		return 0
	}
	return int(now.Sub(then) / (24 * time.Hour))
}
