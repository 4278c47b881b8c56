package app

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/domain"
	"github.com/wavechat/wave/internal/protocol"
)

// SendDM delivers immediately when the recipient has a connection,
// otherwise stores the message for the next connect (TTL-bounded).
func (c *Coordinator) SendDM(client *Client, p protocol.DirectMessage) {
	now := c.now()
	msg := domain.PendingMessage{
		ID:        uuid.NewString(),
		From:      client.User.ID,
		To:        p.RecipientID,
		Content:   p.Content,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.PendingTTL),
	}
	if c.Registry.Online(p.RecipientID) {
		c.broadcast(UserGroup(p.RecipientID), protocol.DirectMessageOut{
			Type:    protocol.OutDirectMessage,
			ID:      msg.ID,
			From:    msg.From,
			To:      msg.To,
			Content: msg.Content,
			SentAt:  now.UnixMilli(),
		})
		return
	}
	if err := c.Pending.InsertIfAbsent(msg); err != nil {
		log.Error().Err(err).Str("module", "app.offline").Str("to", string(msg.To)).Msg("pending insert failed")
	}
}

// flushPending runs on connect: emit every non-expired stored message
// as was-pending, then delete them. A crash between emit and delete can
// re-deliver; that duplicate is accepted. Globally expired messages are
// swept opportunistically on the same pass.
func (c *Coordinator) flushPending(client *Client) {
	now := c.now()
	msgs, err := c.Pending.ListNonExpiredFor(client.User.ID, now)
	if err != nil {
		log.Error().Err(err).Str("module", "app.offline").Str("user", string(client.User.ID)).Msg("pending list failed")
		return
	}
	for _, m := range msgs {
		c.emit(client.Conn, protocol.DirectMessageOut{
			Type:       protocol.OutDirectMessage,
			ID:         m.ID,
			From:       m.From,
			To:         m.To,
			Content:    m.Content,
			SentAt:     m.CreatedAt.UnixMilli(),
			WasPending: true,
		})
	}
	if err := c.Pending.DeleteFor(client.User.ID); err != nil {
		log.Error().Err(err).Str("module", "app.offline").Str("user", string(client.User.ID)).Msg("pending delete failed")
	}
	if err := c.Pending.DeleteExpired(now); err != nil {
		log.Error().Err(err).Str("module", "app.offline").Msg("expired sweep failed")
	}
}
