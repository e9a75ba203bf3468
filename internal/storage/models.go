package storage

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash *string
	ResetToken   *string
	ResetExpires *time.Time
	CreatedAt    time.Time
}

type Usage struct {
	UserID       string
	SummaryCount int
	AccountTier  string
	EncAPIKey    *string
	LastReset    time.Time
}
