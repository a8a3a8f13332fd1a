package engine

import (
	"math"
	"time"

	"fleetline/internal/domain"
)

// Progress returns the mission completion percentage. Only required items
// count; optional items are informational. A mission with no required items
// is always at 100.
func Progress(items []domain.TaskItem) int {
	var total, completed int
	for _, it := range items {
		if !it.Required {
			continue
		}
		total++
		if it.Completed {
			completed++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// OutstandingRequired counts required items not yet completed.
func OutstandingRequired(items []domain.TaskItem) int {
	var n int
	for _, it := range items {
		if it.Required && !it.Completed {
			n++
		}
	}
	return n
}

// CanComplete reports whether every required item is completed (vacuously
// true with no required items).
func CanComplete(items []domain.TaskItem) bool {
	return OutstandingRequired(items) == 0
}

// EffectiveStatus layers the overdue overlay on top of the stored status.
// A mission past its due date reads as overdue unless completed; the stored
// status is never overwritten.
func EffectiveStatus(m domain.Mission, now time.Time) string {
	if m.Status == domain.StatusCompleted {
		return domain.StatusCompleted
	}
	due, err := time.Parse(time.RFC3339, m.DueDate)
	if err == nil && now.After(due) {
		return domain.StatusOverdue
	}
	return m.Status
}
