// Package merge holds the pure payload-merge functions. Each function maps
// (current entity state, incoming payload) to a new entity value plus the
// derived-state invalidations the caller must act on. Nothing in here
// touches storage or the network, which keeps out-of-order and duplicate
// delivery safe: applying the same payload twice yields the same state.
package merge

import "github.com/nguyentranbao-ct/chat-sync/internal/models"

type InvalidationKind string

const (
	// RecomputeUnread asks for the channel's unread counters to be
	// re-derived for the current user.
	RecomputeUnread InvalidationKind = "recompute_unread"
	// Reindex asks for the channel's membership in registered queries to
	// be re-evaluated.
	Reindex InvalidationKind = "reindex"
	// Notify asks for channel subscribers to be notified.
	Notify InvalidationKind = "notify"
)

type Invalidation struct {
	Kind InvalidationKind
	CID  models.CID
}

func invalidateAll(cid models.CID) []Invalidation {
	return []Invalidation{
		{Kind: RecomputeUnread, CID: cid},
		{Kind: Reindex, CID: cid},
		{Kind: Notify, CID: cid},
	}
}
