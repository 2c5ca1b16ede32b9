package domain

import (
	"database/sql"
	"time"
)

type EmailStatus string

const (
	StatusSent   EmailStatus = "sent"
	StatusFailed EmailStatus = "failed"
)

// EmailLog records one delivery attempt of a donor-facing email.
type EmailLog struct {
	PaymentID      string
	RecipientEmail string
	Subject        string
	Status         EmailStatus
	Attempts       int
	ErrorMessage   sql.NullString
	CreatedAt      time.Time
}
