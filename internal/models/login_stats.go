package models

import (
	"time"
)

// LoginStats is the rolling login aggregate kept per user
type LoginStats struct {
	LastLogin            *time.Time  `json:"lastLogin,omitempty"`
	LastStatusChange     *time.Time  `json:"lastStatusChange,omitempty"`
	LoginsInPast12Months []time.Time `json:"loginsInPast12Months"`
}

// NewLoginStats returns empty stats for a user with no history.
func NewLoginStats() *LoginStats {
	return &LoginStats{LoginsInPast12Months: []time.Time{}}
}

// Prune drops logins at or before cutoff. Returns true if anything was removed.
func (s *LoginStats) Prune(cutoff time.Time) bool {
	kept := make([]time.Time, 0, len(s.LoginsInPast12Months))
	for _, t := range s.LoginsInPast12Months {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(s.LoginsInPast12Months) {
		return false
	}
	s.LoginsInPast12Months = kept
	return true
}
