package router

import (
	"sync"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// Notification is what channel subscribers receive: the event that caused
// the change plus a read-only snapshot of the merged channel state.
type Notification struct {
	Event   models.Event
	Channel models.Channel
}

// Subscription delivers notifications for one channel. Cancel is idempotent
// and safe to call concurrently with delivery.
type Subscription struct {
	C      chan Notification
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// UnreadSubscription delivers the channel's unread counters after every
// change.
type UnreadSubscription struct {
	C      chan models.UnreadCount
	cancel func()
	once   sync.Once
}

func (s *UnreadSubscription) Cancel() {
	s.once.Do(s.cancel)
}

// WatcherCountSubscription delivers the channel's watcher count after every
// change.
type WatcherCountSubscription struct {
	C      chan int
	cancel func()
	once   sync.Once
}

func (s *WatcherCountSubscription) Cancel() {
	s.once.Do(s.cancel)
}

const subscriptionBuffer = 16

type subscriber struct {
	cid        models.CID
	eventTypes []models.EventType
	ch         chan Notification
}

func (s *subscriber) wants(t models.EventType) bool {
	return len(s.eventTypes) == 0 || util.SliceIncludes(s.eventTypes, t)
}

type subscriberRegistry struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[int]*subscriber
	unread   map[int]*unreadSub
	watchers map[int]*watcherSub
}

type unreadSub struct {
	cid models.CID
	ch  chan models.UnreadCount
}

type watcherSub struct {
	cid models.CID
	ch  chan int
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{
		subs:     map[int]*subscriber{},
		unread:   map[int]*unreadSub{},
		watchers: map[int]*watcherSub{},
	}
}

func (r *subscriberRegistry) subscribe(cid models.CID, eventTypes []models.EventType) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	sub := &subscriber{cid: cid, eventTypes: eventTypes, ch: make(chan Notification, subscriptionBuffer)}
	r.subs[id] = sub
	return &Subscription{
		C: sub.ch,
		cancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
		},
	}
}

func (r *subscriberRegistry) subscribeUnread(cid models.CID) *UnreadSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	sub := &unreadSub{cid: cid, ch: make(chan models.UnreadCount, subscriptionBuffer)}
	r.unread[id] = sub
	return &UnreadSubscription{
		C: sub.ch,
		cancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.unread, id)
		},
	}
}

func (r *subscriberRegistry) subscribeWatcherCount(cid models.CID) *WatcherCountSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	sub := &watcherSub{cid: cid, ch: make(chan int, subscriptionBuffer)}
	r.watchers[id] = sub
	return &WatcherCountSubscription{
		C: sub.ch,
		cancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.watchers, id)
		},
	}
}

// notify fans a notification out to matching subscribers. Slow consumers
// drop notifications instead of blocking event application; the channel
// snapshot always carries the latest state, so a drop only costs an
// intermediate update.
func (r *subscriberRegistry) notify(n Notification) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if sub.cid != n.Event.CID || !sub.wants(n.Event.Type) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
		}
	}
}

func (r *subscriberRegistry) notifyUnread(cid models.CID, count models.UnreadCount) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.unread {
		if sub.cid != cid {
			continue
		}
		select {
		case sub.ch <- count:
		default:
		}
	}
}

func (r *subscriberRegistry) notifyWatcherCount(cid models.CID, count int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.watchers {
		if sub.cid != cid {
			continue
		}
		select {
		case sub.ch <- count:
		default:
		}
	}
}
