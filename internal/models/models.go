package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID                int64
	UUID              uuid.UUID
	Email             string
	PasswordHash      []byte
	PasswordSalt      []byte
	PasswordAlgorithm string
	VerifiedEmail     bool
	Active            bool
}

type VerificationToken struct {
	AccountID int64
	TokenHash string
	ExpiresAt time.Time
}

// IsExpired reports whether the token can no longer be consumed.
func (t *VerificationToken) IsExpired() bool {
	return t.ExpiresAt.Before(time.Now())
}

// Message is the payload published to the outbound email queue.
type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}
