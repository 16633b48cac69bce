// Package store defines the entity store: the system of record every other
// component reads from and writes through. Entities are normalized tables
// keyed by natural id (cid, message id, user id, cid/user id). Deletes are
// tombstones: a tombstoned entity disappears from query results but stays
// loadable by key for detail views that already hold it.
package store

import (
	"context"
	"time"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

type ChannelStore interface {
	// LoadOrCreate returns the channel or an empty placeholder with the
	// key set. It only fails on storage I/O errors.
	LoadOrCreate(ctx context.Context, cid models.CID) (models.Channel, error)
	Get(ctx context.Context, cid models.CID) (models.Channel, error)
	Upsert(ctx context.Context, ch models.Channel) error
	// Delete tombstones the channel; it stays loadable by key.
	Delete(ctx context.Context, cid models.CID, at time.Time) error
	// Query returns non-tombstoned channels matching pred in the stable
	// default order: last-activity-or-creation descending, cid ascending
	// on ties.
	Query(ctx context.Context, pred func(models.Channel) bool) ([]models.Channel, error)
}

type MessageStore interface {
	Get(ctx context.Context, id string) (models.Message, error)
	Upsert(ctx context.Context, msg models.Message) error
	Delete(ctx context.Context, id string, at time.Time) error
	// Remove hard-deletes a message; only used to drop a provisional
	// message once the server ack arrives under its real id.
	Remove(ctx context.Context, id string) error
	// ListByChannel returns the channel's messages ordered by
	// (created_at, id) ascending. Tombstoned messages are included: they
	// keep their position so pagination stays stable.
	ListByChannel(ctx context.Context, cid models.CID, limit int) ([]models.Message, error)
	// TruncateChannel tombstones every message of the channel.
	TruncateChannel(ctx context.Context, cid models.CID, at time.Time) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (models.User, error)
	Upsert(ctx context.Context, user models.User) error
}

type MemberStore interface {
	Get(ctx context.Context, cid models.CID, userID string) (models.Member, error)
	Upsert(ctx context.Context, member models.Member) error
	Delete(ctx context.Context, cid models.CID, userID string) error
	ListByChannel(ctx context.Context, cid models.CID) ([]models.Member, error)
}

// QueryStore persists one index table per registered query, keyed by the
// query's content hash. The persisted sets are derived state: they speed up
// cold starts but can always be rebuilt from the channel table.
type QueryStore interface {
	Save(ctx context.Context, queryHash string, cids []models.CID) error
	Load(ctx context.Context, queryHash string) ([]models.CID, error)
}

// Store groups the entity tables behind one handle.
type Store interface {
	Channels() ChannelStore
	Messages() MessageStore
	Users() UserStore
	Members() MemberStore
	Queries() QueryStore
}
