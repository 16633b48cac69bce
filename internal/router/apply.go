package router

import (
	"context"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"

	"github.com/nguyentranbao-ct/chat-sync/internal/merge"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// Apply dispatches one push event. Events for the same channel are applied
// in arrival order; push events are dropped while the router is
// disconnected (the reconnect resync covers the gap).
func (r *Router) Apply(ctx context.Context, ev models.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", models.ErrDecode, ev.Type)
	}
	if !r.connected.Load() {
		log.Debugw(ctx, "dropping push event while disconnected", "type", ev.Type, "cid", ev.CID)
		return nil
	}
	return r.apply(ctx, ev)
}

// ApplyLocal applies an event produced by a local user command. Local
// commands take effect regardless of connection state, so the
// disconnected gate does not apply.
func (r *Router) ApplyLocal(ctx context.Context, ev models.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", models.ErrDecode, ev.Type)
	}
	return r.apply(ctx, ev)
}

func (r *Router) apply(ctx context.Context, ev models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	if ev.CID != "" {
		mu := r.lockFor(ev.CID)
		mu.Lock()
		defer mu.Unlock()
	}

	switch ev.Type {
	case models.EventMessageNew:
		return r.applyMessageNew(ctx, ev)
	case models.EventMessageUpdated, models.EventReactionNew, models.EventReactionDeleted:
		return r.applyMessageUpdated(ctx, ev)
	case models.EventMessageDeleted:
		return r.applyMessageDeleted(ctx, ev)
	case models.EventMessageRead:
		return r.applyMessageRead(ctx, ev)
	case models.EventMemberAdded:
		return r.applyMemberAdded(ctx, ev)
	case models.EventMemberRemoved:
		return r.applyMemberRemoved(ctx, ev)
	case models.EventUserPresenceChanged:
		return r.applyUserUpdate(ctx, ev)
	case models.EventUserWatchingStart, models.EventUserWatchingStop:
		return r.applyWatching(ctx, ev)
	case models.EventUserBanned:
		return r.applyUserBanned(ctx, ev)
	case models.EventChannelUpdated:
		return r.applyChannelUpdated(ctx, ev)
	case models.EventChannelDeleted:
		return r.applyChannelDeleted(ctx, ev)
	case models.EventChannelTruncated:
		return r.applyChannelTruncated(ctx, ev)
	}
	return nil
}

func (r *Router) applyMessageNew(ctx context.Context, ev models.Event) error {
	if ev.Message == nil {
		return fmt.Errorf("%w: %s without message", models.ErrDecode, ev.Type)
	}

	result, err := r.mergeAndStoreMessage(ctx, ev.CID, *ev.Message)
	if err != nil {
		return err
	}
	msg := result.Message

	ch, err := r.store.Channels().LoadOrCreate(ctx, msg.CID)
	if err != nil {
		return err
	}
	if result.Existed {
		// replayed delivery: the upsert above is idempotent but the
		// counters are not, so accounting runs once per message
		r.notifyChannel(ev, ch)
		return nil
	}
	ch = r.accountant.OnMessageNew(ch, msg)
	if !msg.IsReply() && (ch.LastMessageAt == nil || msg.CreatedAt.After(*ch.LastMessageAt)) {
		ch.LastMessageAt = util.Ptr(msg.CreatedAt)
	}
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(ev, ch)
	r.registry.notifyUnread(ch.CID, ch.Unread)
	return nil
}

func (r *Router) applyMessageUpdated(ctx context.Context, ev models.Event) error {
	if ev.Message == nil {
		return fmt.Errorf("%w: %s without message", models.ErrDecode, ev.Type)
	}

	result, err := r.mergeAndStoreMessage(ctx, ev.CID, *ev.Message)
	if err != nil {
		return err
	}

	// edits and reaction changes never re-sort the message list: the
	// ordering key is created_at, which they cannot change
	ch, err := r.store.Channels().LoadOrCreate(ctx, result.Message.CID)
	if err != nil {
		return err
	}
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyMessageDeleted(ctx context.Context, ev models.Event) error {
	if ev.Message == nil {
		return fmt.Errorf("%w: %s without message", models.ErrDecode, ev.Type)
	}

	payload := *ev.Message
	if payload.DeletedAt == nil {
		payload.DeletedAt = util.Ptr(ev.CreatedAt)
	}
	result, err := r.mergeAndStoreMessage(ctx, ev.CID, payload)
	if err != nil {
		return err
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, result.Message.CID)
	if err != nil {
		return err
	}
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyMessageRead(ctx context.Context, ev models.Event) error {
	if ev.User == nil {
		return fmt.Errorf("%w: %s without user", models.ErrDecode, ev.Type)
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	ch = r.accountant.OnMessageRead(ch, ev.User.ID, ev.CreatedAt)
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return err
	}

	r.notifyChannel(ev, ch)
	r.registry.notifyUnread(ch.CID, ch.Unread)
	return nil
}

func (r *Router) applyMemberAdded(ctx context.Context, ev models.Event) error {
	if ev.Member == nil {
		return fmt.Errorf("%w: %s without member", models.ErrDecode, ev.Type)
	}

	member, err := merge.Member(ctx, ev.CID, nil, *ev.Member)
	if err != nil {
		return err
	}
	if err := r.store.Members().Upsert(ctx, member); err != nil {
		return err
	}
	if ev.Member.User != nil {
		if user, err := merge.User(ctx, nil, *ev.Member.User); err == nil {
			if err := r.store.Users().Upsert(ctx, user); err != nil {
				return err
			}
		}
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	ch, _ = merge.AddMembers(ch, []models.Member{member})
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyMemberRemoved(ctx context.Context, ev models.Event) error {
	userID := ""
	switch {
	case ev.Member != nil && ev.Member.UserID != "":
		userID = ev.Member.UserID
	case ev.Member != nil && ev.Member.User != nil:
		userID = ev.Member.User.ID
	case ev.User != nil:
		userID = ev.User.ID
	}
	if userID == "" {
		return fmt.Errorf("%w: %s without user id", models.ErrDecode, ev.Type)
	}

	if err := r.store.Members().Delete(ctx, ev.CID, userID); err != nil {
		return err
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	ch, _ = merge.RemoveMembers(ch, []string{userID})
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyUserUpdate(ctx context.Context, ev models.Event) error {
	if ev.User == nil {
		return fmt.Errorf("%w: %s without user", models.ErrDecode, ev.Type)
	}

	var existing *models.User
	if current, err := r.store.Users().Get(ctx, ev.User.ID); err == nil {
		existing = &current
	}
	user, err := merge.User(ctx, existing, *ev.User)
	if err != nil {
		return err
	}
	return r.store.Users().Upsert(ctx, user)
}

func (r *Router) applyWatching(ctx context.Context, ev models.Event) error {
	if ev.User == nil {
		return fmt.Errorf("%w: %s without user", models.ErrDecode, ev.Type)
	}
	if err := r.applyUserUpdate(ctx, ev); err != nil {
		return err
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	if ev.Type == models.EventUserWatchingStart {
		if !util.SliceIncludes(ch.WatcherIDs, ev.User.ID) {
			ch.WatcherIDs = append(ch.WatcherIDs, ev.User.ID)
		}
	} else {
		ch.WatcherIDs = util.Reject(ch.WatcherIDs, func(id string) bool {
			return id == ev.User.ID
		})
	}
	if ev.WatcherCount > 0 {
		ch.WatcherCount = ev.WatcherCount
	} else {
		ch.WatcherCount = len(ch.WatcherIDs)
	}
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return err
	}

	r.notifyChannel(ev, ch)
	r.registry.notifyWatcherCount(ch.CID, ch.WatcherCount)
	return nil
}

func (r *Router) applyUserBanned(ctx context.Context, ev models.Event) error {
	if ev.User == nil {
		return fmt.Errorf("%w: %s without user", models.ErrDecode, ev.Type)
	}

	var existing *models.User
	if current, err := r.store.Users().Get(ctx, ev.User.ID); err == nil {
		existing = &current
	}
	user, err := merge.User(ctx, existing, *ev.User)
	if err != nil {
		return err
	}
	user.Banned = true
	if err := r.store.Users().Upsert(ctx, user); err != nil {
		return err
	}

	if ev.CID == "" {
		return nil
	}
	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	if !util.SliceIncludes(ch.BannedUserIDs, user.ID) {
		ch.BannedUserIDs = append(ch.BannedUserIDs, user.ID)
		if err := r.store.Channels().Upsert(ctx, ch); err != nil {
			return err
		}
	}
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyChannelUpdated(ctx context.Context, ev models.Event) error {
	if ev.Channel == nil {
		return fmt.Errorf("%w: %s without channel", models.ErrDecode, ev.Type)
	}

	// targeted events carry partial member lists, never a full snapshot
	ch, err := r.mergeAndStoreChannel(ctx, *ev.Channel, false)
	if err != nil {
		return err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyChannelDeleted(ctx context.Context, ev models.Event) error {
	at := ev.CreatedAt
	if ev.Channel != nil && ev.Channel.DeletedAt != nil {
		at = *ev.Channel.DeletedAt
	}
	if err := r.store.Channels().Delete(ctx, ev.CID, at); err != nil && err != models.ErrNotFound {
		return err
	}

	r.index.Remove(ev.CID)
	r.persistQueryResults(ctx)

	ch, err := r.store.Channels().Get(ctx, ev.CID)
	if err != nil {
		ch = models.Channel{CID: ev.CID, DeletedAt: util.Ptr(at)}
	}
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) applyChannelTruncated(ctx context.Context, ev models.Event) error {
	if err := r.store.Messages().TruncateChannel(ctx, ev.CID, ev.CreatedAt); err != nil {
		return err
	}

	ch, err := r.store.Channels().LoadOrCreate(ctx, ev.CID)
	if err != nil {
		return err
	}
	r.notifyChannel(ev, ch)
	return nil
}

func (r *Router) notifyChannel(ev models.Event, ch models.Channel) {
	if ev.CID == "" {
		ev.CID = ch.CID
	}
	r.registry.notify(Notification{Event: ev, Channel: ch})
}

func (r *Router) mergeAndStoreMessage(ctx context.Context, cid models.CID, p models.MessagePayload) (merge.MessageResult, error) {
	if p.CID == "" {
		p.CID = string(cid)
	}

	var existing *models.Message
	if current, err := r.store.Messages().Get(ctx, p.ID); err == nil {
		existing = &current
	}
	result, err := merge.Message(ctx, existing, p)
	if err != nil {
		return merge.MessageResult{}, err
	}

	for _, user := range result.Users {
		if err := r.store.Users().Upsert(ctx, user); err != nil {
			return merge.MessageResult{}, err
		}
	}
	if err := r.store.Messages().Upsert(ctx, result.Message); err != nil {
		return merge.MessageResult{}, err
	}
	return result, nil
}

func (r *Router) mergeAndStoreChannel(ctx context.Context, p models.ChannelPayload, snapshot bool) (models.Channel, error) {
	var existing *models.Channel
	if cid, err := models.ParseCID(p.CID); err == nil {
		if current, err := r.store.Channels().Get(ctx, cid); err == nil {
			existing = &current
		}
	}

	result, err := merge.Channel(ctx, existing, p, snapshot)
	if err != nil {
		return models.Channel{}, err
	}

	for _, user := range result.Users {
		if err := r.store.Users().Upsert(ctx, user); err != nil {
			return models.Channel{}, err
		}
	}
	for _, member := range result.Members {
		if err := r.store.Members().Upsert(ctx, member); err != nil {
			return models.Channel{}, err
		}
	}
	if err := r.store.Channels().Upsert(ctx, result.Channel); err != nil {
		return models.Channel{}, err
	}
	return result.Channel, nil
}
