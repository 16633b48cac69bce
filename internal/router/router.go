// Package router is the single entry point for every inbound push event and
// REST response. Each inbound payload is applied in a fixed order: entity
// merge and persistence first, then unread accounting, then query
// re-indexing, then subscriber notification. Unread accounting and query
// sorting both read the just-merged entity state, so the order matters.
package router

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	log "github.com/carousell/ct-go/pkg/logger/log_context"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/store"
	"github.com/nguyentranbao-ct/chat-sync/internal/unread"
)

// ResyncFunc reconciles the local cache against a fresh channel-list query.
// Installed by the owner and invoked on every transition to connected,
// because events missed while disconnected are not replayed.
type ResyncFunc func(ctx context.Context) error

const lockStripes = 64

type Router struct {
	store      store.Store
	index      *queryindex.Index
	accountant *unread.Accountant
	registry   *subscriberRegistry

	// per-cid striped locks: events for the same channel apply in arrival
	// order, events for different channels run concurrently
	locks [lockStripes]sync.Mutex

	connected atomic.Bool
	resyncMu  sync.RWMutex
	resync    ResyncFunc
}

func New(st store.Store, index *queryindex.Index, accountant *unread.Accountant) *Router {
	return &Router{
		store:      st,
		index:      index,
		accountant: accountant,
		registry:   newSubscriberRegistry(),
	}
}

func (r *Router) Store() store.Store          { return r.store }
func (r *Router) Index() *queryindex.Index    { return r.index }
func (r *Router) Accountant() *unread.Accountant { return r.accountant }

func (r *Router) SetResyncFunc(fn ResyncFunc) {
	r.resyncMu.Lock()
	defer r.resyncMu.Unlock()
	r.resync = fn
}

func (r *Router) Connected() bool { return r.connected.Load() }

// SetConnected flips the router's connection state. A rising edge runs the
// installed resync, reconciling everything missed while disconnected.
func (r *Router) SetConnected(ctx context.Context, connected bool) {
	was := r.connected.Swap(connected)
	if connected == was {
		return
	}
	if !connected {
		log.Infow(ctx, "router disconnected")
		return
	}

	log.Infow(ctx, "router connected, resyncing")
	r.resyncMu.RLock()
	resync := r.resync
	r.resyncMu.RUnlock()
	if resync == nil {
		return
	}
	if err := resync(ctx); err != nil {
		log.Errorw(ctx, "resync after reconnect failed", "error", err)
	}
}

// Subscribe delivers merged-state notifications for a channel. An empty
// eventTypes list subscribes to everything.
func (r *Router) Subscribe(cid models.CID, eventTypes ...models.EventType) *Subscription {
	return r.registry.subscribe(cid, eventTypes)
}

func (r *Router) SubscribeUnread(cid models.CID) *UnreadSubscription {
	return r.registry.subscribeUnread(cid)
}

func (r *Router) SubscribeWatcherCount(cid models.CID) *WatcherCountSubscription {
	return r.registry.subscribeWatcherCount(cid)
}

func (r *Router) lockFor(cid models.CID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(cid))
	return &r.locks[h.Sum32()%lockStripes]
}

// reindex re-evaluates the channel against registered queries and persists
// the refreshed index tables.
func (r *Router) reindex(ctx context.Context, ch models.Channel) {
	r.index.ApplyUpsert(ch)
	r.persistQueryResults(ctx)
}

func (r *Router) persistQueryResults(ctx context.Context) {
	for id, cids := range r.index.Results() {
		if err := r.store.Queries().Save(ctx, string(id), cids); err != nil {
			log.Warnw(ctx, "persist query result failed", "query_id", id, "error", err)
		}
	}
}

// RebuildIndex recomputes every registered query from the channel table.
// Derived indices are never authoritative, so this is always safe.
func (r *Router) RebuildIndex(ctx context.Context) error {
	channels, err := r.store.Channels().Query(ctx, nil)
	if err != nil {
		return err
	}
	r.index.Rebuild(channels)
	r.persistQueryResults(ctx)
	return nil
}
