package core

import (
	"context"
	"time"

	"github.com/wavechat/wave/internal/domain"
)

// Frame is a marshaled outbound event.
type Frame []byte

// SessionID identifies one live connection (one websocket), not a user.
// A user may own several concurrent sessions.
type SessionID string

// Conn abstracts the transport endpoint of a connection.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// Claims is the verified content of a session token.
type Claims struct {
	UserID   domain.UserID
	Username string
}

// TokenVerifier checks a signed session token and returns its claims.
// Fails closed: any error refuses the connection.
type TokenVerifier func(token string) (Claims, error)

// Directory is the membership/authorization collaborator. Lookups must
// complete before any in-memory mutation begins (see Coordinator).
type Directory interface {
	IsMember(ctx context.Context, userID domain.UserID, orgID domain.OrgID) (bool, error)
	IsOwner(ctx context.Context, userID domain.UserID, orgID domain.OrgID) (bool, error)
	ChannelByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	OrgsOf(ctx context.Context, userID domain.UserID) ([]domain.OrgID, error)
}

// PendingStore persists direct messages for offline recipients.
type PendingStore interface {
	// InsertIfAbsent writes the record; a second write of the same
	// record is a no-op (idempotent against retry).
	InsertIfAbsent(msg domain.PendingMessage) error
	ListNonExpiredFor(userID domain.UserID, now time.Time) ([]domain.PendingMessage, error)
	DeleteFor(userID domain.UserID) error
	DeleteExpired(now time.Time) error
}
