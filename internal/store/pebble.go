// Package store persists pending direct messages in an embedded Pebble
// database. Keys sort by recipient then creation time:
//
//	dm:<recipient>:<created unixnano %020d>-<id>
//
// so per-recipient reads and deletes are prefix scans.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/domain"
)

type PendingStore struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*PendingStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	log.Info().Str("module", "store").Str("path", path).Msg("pebble opened")
	return &PendingStore{db: db}, nil
}

func (s *PendingStore) Close() error {
	return s.db.Close()
}

func pendingKey(m domain.PendingMessage) []byte {
	return []byte(fmt.Sprintf("dm:%s:%020d-%s", m.To, m.CreatedAt.UTC().UnixNano(), m.ID))
}

func recipientPrefix(uid domain.UserID) []byte {
	return []byte("dm:" + string(uid) + ":")
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// InsertIfAbsent writes the record unless its exact key already exists,
// making retries idempotent.
func (s *PendingStore) InsertIfAbsent(m domain.PendingMessage) error {
	key := pendingKey(m)
	_, closer, err := s.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return nil
	}
	if err != pebble.ErrNotFound {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal pending message: %w", err)
	}
	return s.db.Set(key, data, pebble.Sync)
}

// ListNonExpiredFor returns the recipient's stored messages in
// insertion order, skipping anything already expired.
func (s *PendingStore) ListNonExpiredFor(uid domain.UserID, now time.Time) ([]domain.PendingMessage, error) {
	prefix := recipientPrefix(uid)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []domain.PendingMessage
	for iter.First(); iter.Valid(); iter.Next() {
		var m domain.PendingMessage
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			log.Warn().Err(err).Str("module", "store").Str("key", string(iter.Key())).Msg("skipping undecodable pending message")
			continue
		}
		if m.Expired(now) {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// DeleteFor removes every stored message addressed to the recipient.
func (s *PendingStore) DeleteFor(uid domain.UserID) error {
	prefix := recipientPrefix(uid)
	return s.db.DeleteRange(prefix, prefixUpperBound(prefix), pebble.Sync)
}

// DeleteExpired sweeps the whole namespace for expired records. Called
// opportunistically on recipient connect.
func (s *PendingStore) DeleteExpired(now time.Time) error {
	prefix := []byte("dm:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var m domain.PendingMessage
		if err := json.Unmarshal(iter.Value(), &m); err != nil || m.Expired(now) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}
