package domain

import "time"

// PendingTTL is how long an undelivered direct message is kept before
// it is dropped.
const PendingTTL = 7 * 24 * time.Hour

// PendingMessage is a store-and-forward record for a direct message
// addressed to a user with no open connection. Deleted on delivery.
type PendingMessage struct {
	ID        string    `json:"id"`
	From      UserID    `json:"from"`
	To        UserID    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (m PendingMessage) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
