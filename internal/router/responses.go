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

// REST responses flow through the router in both connection states: a
// completion that raced a disconnect still carries a complete payload worth
// merging.

// ApplyChannelResponse merges a channel-detail snapshot: the channel
// payload (full member set), the fetched message page, watcher list and
// the server's unread marker.
func (r *Router) ApplyChannelResponse(ctx context.Context, resp models.ChannelResponse) (models.Channel, error) {
	if resp.Channel == nil {
		return models.Channel{}, fmt.Errorf("%w: channel response without channel", models.ErrDecode)
	}
	cid, err := models.ParseCID(resp.Channel.CID)
	if err != nil {
		return models.Channel{}, err
	}

	mu := r.lockFor(cid)
	mu.Lock()
	defer mu.Unlock()

	ch, err := r.mergeAndStoreChannel(ctx, *resp.Channel, true)
	if err != nil {
		return models.Channel{}, err
	}

	// merge the message page entity by entity; a bad message is logged
	// and skipped, never aborting the batch
	msgs := make([]models.Message, 0, len(resp.Messages))
	for _, mp := range resp.Messages {
		result, err := r.mergeAndStoreMessage(ctx, cid, mp)
		if err != nil {
			log.Warnw(ctx, "skipping message in channel response", "message_id", mp.ID, "error", err)
			continue
		}
		msgs = append(msgs, result.Message)
	}

	// snapshot watcher list replaces the local one
	if len(resp.Watchers) > 0 || resp.WatcherCount > 0 {
		ids := make([]string, 0, len(resp.Watchers))
		for _, up := range resp.Watchers {
			user, err := merge.User(ctx, nil, up)
			if err != nil {
				continue
			}
			if err := r.store.Users().Upsert(ctx, user); err != nil {
				return models.Channel{}, err
			}
			ids = append(ids, user.ID)
		}
		ch.WatcherIDs = ids
		ch.WatcherCount = resp.WatcherCount
		if ch.WatcherCount == 0 {
			ch.WatcherCount = len(ids)
		}
	}

	ch = r.accountant.Seed(ch, msgs, currentUserRead(resp.Reads, r.accountant.CurrentUserID()))

	if ch.LastMessageAt == nil && len(msgs) > 0 {
		ch.LastMessageAt = util.Ptr(msgs[len(msgs)-1].CreatedAt)
	}
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return models.Channel{}, err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(models.Event{Type: models.EventChannelUpdated, CID: cid, CreatedAt: time.Now()}, ch)
	r.registry.notifyUnread(cid, ch.Unread)
	r.registry.notifyWatcherCount(cid, ch.WatcherCount)
	return ch, nil
}

// ApplyChannelList merges a channel-list response. Each channel is merged
// independently: one malformed entry is logged and skipped while the rest
// of the batch lands.
func (r *Router) ApplyChannelList(ctx context.Context, resp models.ChannelListResponse) []models.Channel {
	channels := make([]models.Channel, 0, len(resp.Channels))
	for _, item := range resp.Channels {
		ch, err := r.ApplyChannelResponse(ctx, item)
		if err != nil {
			cid := ""
			if item.Channel != nil {
				cid = item.Channel.CID
			}
			log.Warnw(ctx, "skipping channel in list response", "cid", cid, "error", err)
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}

// ApplyMessageResponse merges a send-message ack. When the server assigned
// a different id than the provisional one, the provisional message is
// removed so the acked message takes its place.
func (r *Router) ApplyMessageResponse(ctx context.Context, provisionalID string, resp models.MessageResponse) (models.Message, error) {
	if resp.Message == nil {
		return models.Message{}, fmt.Errorf("%w: message response without message", models.ErrDecode)
	}
	cid, err := models.ParseCID(resp.Message.CID)
	if err != nil {
		return models.Message{}, err
	}

	mu := r.lockFor(cid)
	mu.Lock()
	defer mu.Unlock()

	if provisionalID != "" && provisionalID != resp.Message.ID {
		if err := r.store.Messages().Remove(ctx, provisionalID); err != nil {
			return models.Message{}, err
		}
	}

	result, err := r.mergeAndStoreMessage(ctx, cid, *resp.Message)
	if err != nil {
		return models.Message{}, err
	}
	msg := result.Message

	ch, err := r.store.Channels().LoadOrCreate(ctx, cid)
	if err != nil {
		return models.Message{}, err
	}
	// the ack is the current user's own message: unread resets
	ch = r.accountant.OnMessageNew(ch, msg)
	if !msg.IsReply() && (ch.LastMessageAt == nil || msg.CreatedAt.After(*ch.LastMessageAt)) {
		ch.LastMessageAt = util.Ptr(msg.CreatedAt)
	}
	if err := r.store.Channels().Upsert(ctx, ch); err != nil {
		return models.Message{}, err
	}

	r.reindex(ctx, ch)
	r.notifyChannel(models.Event{Type: models.EventMessageNew, CID: cid, Message: resp.Message, CreatedAt: time.Now()}, ch)
	r.registry.notifyUnread(cid, ch.Unread)
	return msg, nil
}

func currentUserRead(reads []models.ReadStatePayload, currentUserID string) *models.ReadStatePayload {
	for i := range reads {
		if reads[i].User != nil && reads[i].User.ID == currentUserID {
			return &reads[i]
		}
	}
	return nil
}
