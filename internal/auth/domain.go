package auth

import "time"

// User represents an account known to the identity adapter. Subject is the
// stable identifier carried in bearer tokens.
type User struct {
	ID           int64
	Subject      string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
