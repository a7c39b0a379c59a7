package models

import "time"

// LoginAttempt is an immutable ledger entry for a single login attempt.
// Sequence is assigned by the ledger and breaks ties between equal timestamps.
type LoginAttempt struct {
	AttemptedAt time.Time `json:"attempted_at"`
	IPAddress   string    `json:"ip_address"`
	Identifier  string    `json:"identifier"`
	Sequence    int64     `json:"sequence"`
	Success     bool      `json:"success"`
}
