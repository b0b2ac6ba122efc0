package models

import "time"

// ScheduledResume is a durable request to resume an execution at DueAt.
// Epoch must still match the execution when it is delivered.
type ScheduledResume struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id"`
	Epoch       int64      `json:"epoch"`
	DueAt       time.Time  `json:"due_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Claimable reports whether the record is due and not held by a live lease.
func (s *ScheduledResume) Claimable(now time.Time, lease time.Duration) bool {
	if s.DeliveredAt != nil || s.CancelledAt != nil || s.DueAt.After(now) {
		return false
	}

	return s.ClaimedAt == nil || !s.ClaimedAt.Add(lease).After(now)
}
