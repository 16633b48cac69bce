package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/store/memory"
	"github.com/nguyentranbao-ct/chat-sync/internal/unread"
)

const me = "u1"

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	rt := New(memory.NewStore(), queryindex.NewIndex(), unread.NewAccountant(me))
	rt.SetConnected(context.Background(), true)
	return rt
}

func messageEvent(cid, id, userID string, at time.Time) models.Event {
	return models.Event{
		Type: models.EventMessageNew,
		CID:  models.CID(cid),
		Message: &models.MessagePayload{
			ID:        id,
			CID:       cid,
			User:      &models.UserPayload{ID: userID},
			Text:      "hello",
			CreatedAt: at,
		},
		CreatedAt: at,
	}
}

func TestApplyMessageNew(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)
	queryID := rt.Index().Register(queryindex.Spec{})

	sub := rt.Subscribe("messaging:a")
	defer sub.Cancel()
	unreadSub := rt.SubscribeUnread("messaging:a")
	defer unreadSub.Cancel()

	at := time.Now()
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", at)))

	// message persisted
	msg, err := rt.Store().Messages().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)

	// unread counted, activity bumped
	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.Unread.Messages)
	require.NotNil(t, ch.LastMessageAt)
	assert.Equal(t, at.Unix(), ch.LastMessageAt.Unix())

	// channel entered the registered query
	cids, _ := rt.Index().Page(queryID, "", 10)
	assert.Equal(t, []models.CID{"messaging:a"}, cids)

	// subscribers observed the merged state
	select {
	case n := <-sub.C:
		assert.Equal(t, models.EventMessageNew, n.Event.Type)
		assert.Equal(t, 1, n.Channel.Unread.Messages)
	default:
		t.Fatal("expected a channel notification")
	}
	select {
	case count := <-unreadSub.C:
		assert.Equal(t, 1, count.Messages)
	default:
		t.Fatal("expected an unread notification")
	}
}

func TestApplyIsIdempotentPerMessage(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	ev := messageEvent("messaging:a", "m1", "u2", time.Now())
	require.NoError(t, rt.Apply(ctx, ev))
	require.NoError(t, rt.Apply(ctx, ev))

	// replaying the same message must not double the stored messages
	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// nor the unread counters: Kafka delivery is at-least-once
	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.Unread.Messages)
}

func TestApplyReplayedMentionDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	ev := messageEvent("messaging:a", "m1", "u2", time.Now())
	ev.Message.MentionedUsers = []models.UserPayload{{ID: me}}
	require.NoError(t, rt.Apply(ctx, ev))
	require.NoError(t, rt.Apply(ctx, ev))

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{Messages: 1, MentionedMessages: 1}, ch.Unread)
}

func TestApplyLocalWorksWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	base := time.Now()
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", base)))
	rt.SetConnected(ctx, false)

	// the gate drops push events, but local commands still take effect
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m2", "u2", base.Add(time.Second))))
	require.NoError(t, rt.ApplyLocal(ctx, models.Event{
		Type:      models.EventMessageRead,
		CID:       "messaging:a",
		User:      &models.UserPayload{ID: me},
		CreatedAt: base.Add(2 * time.Second),
	}))

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)

	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestApplyMessageReadResetsCounters(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	base := time.Now()
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", base)))
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m2", "u2", base.Add(time.Second))))

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type:      models.EventMessageRead,
		CID:       "messaging:a",
		User:      &models.UserPayload{ID: me},
		CreatedAt: base.Add(2 * time.Second),
	}))

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)
	require.NotNil(t, ch.LastRead)

	// another user's receipt leaves local counters alone
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m3", "u2", base.Add(3*time.Second))))
	require.NoError(t, rt.Apply(ctx, models.Event{
		Type: models.EventMessageRead,
		CID:  "messaging:a",
		User: &models.UserPayload{ID: "u2"},
	}))
	ch, err = rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.Unread.Messages)
}

func TestApplyDropsEventsWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	rt := New(memory.NewStore(), queryindex.NewIndex(), unread.NewAccountant(me))

	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", time.Now())))
	_, err := rt.Store().Messages().Get(ctx, "m1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReconnectRunsResync(t *testing.T) {
	ctx := context.Background()
	rt := New(memory.NewStore(), queryindex.NewIndex(), unread.NewAccountant(me))

	calls := 0
	rt.SetResyncFunc(func(ctx context.Context) error {
		calls++
		return nil
	})

	rt.SetConnected(ctx, true)
	assert.Equal(t, 1, calls)

	// no transition, no resync
	rt.SetConnected(ctx, true)
	assert.Equal(t, 1, calls)

	rt.SetConnected(ctx, false)
	rt.SetConnected(ctx, true)
	assert.Equal(t, 2, calls)
}

func TestApplyRejectsUnknownEventType(t *testing.T) {
	rt := newTestRouter(t)
	err := rt.Apply(context.Background(), models.Event{Type: "mystery.event", CID: "messaging:a"})
	assert.ErrorIs(t, err, models.ErrDecode)
}

func TestApplyMemberAddedAndRemoved(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)
	queryID := rt.Index().Register(queryindex.Spec{
		Filter: queryindex.Filter{Field: "members", Op: queryindex.OpContains, Value: "u9"},
	})

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type:   models.EventMemberAdded,
		CID:    "messaging:a",
		Member: &models.MemberPayload{User: &models.UserPayload{ID: "u9", Name: "Nine"}},
	}))

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.True(t, ch.HasMember("u9"))

	member, err := rt.Store().Members().Get(ctx, "messaging:a", "u9")
	require.NoError(t, err)
	assert.Equal(t, "u9", member.UserID)

	// membership query follows the change
	cids, _ := rt.Index().Page(queryID, "", 10)
	require.Equal(t, []models.CID{"messaging:a"}, cids)

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type:   models.EventMemberRemoved,
		CID:    "messaging:a",
		Member: &models.MemberPayload{UserID: "u9"},
	}))

	ch, err = rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.False(t, ch.HasMember("u9"))
	cids, _ = rt.Index().Page(queryID, "", 10)
	assert.Empty(t, cids)
}

func TestApplyWatchingUpdatesWatcherCount(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	watcherSub := rt.SubscribeWatcherCount("messaging:a")
	defer watcherSub.Cancel()

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type: models.EventUserWatchingStart,
		CID:  "messaging:a",
		User: &models.UserPayload{ID: "u2"},
	}))
	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.WatcherCount)

	select {
	case count := <-watcherSub.C:
		assert.Equal(t, 1, count)
	default:
		t.Fatal("expected a watcher count notification")
	}

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type: models.EventUserWatchingStop,
		CID:  "messaging:a",
		User: &models.UserPayload{ID: "u2"},
	}))
	ch, err = rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 0, ch.WatcherCount)
}

func TestApplyChannelTruncatedKeepsUnread(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	base := time.Now()
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", base)))
	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m2", "u2", base.Add(time.Second))))

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type:      models.EventChannelTruncated,
		CID:       "messaging:a",
		CreatedAt: base.Add(2 * time.Second),
	}))

	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.IsDeleted())
	}

	// truncation wipes history, not the unread marker
	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 2, ch.Unread.Messages)
}

func TestApplyChannelDeletedRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)
	queryID := rt.Index().Register(queryindex.Spec{})

	require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", "m1", "u2", time.Now())))
	cids, _ := rt.Index().Page(queryID, "", 10)
	require.Equal(t, []models.CID{"messaging:a"}, cids)

	require.NoError(t, rt.Apply(ctx, models.Event{
		Type: models.EventChannelDeleted,
		CID:  "messaging:a",
	}))

	cids, _ = rt.Index().Page(queryID, "", 10)
	assert.Empty(t, cids)

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.True(t, ch.IsDeleted())
}

func TestApplyChannelResponseSeedsUnread(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastRead := base.Add(time.Minute)
	resp := models.ChannelResponse{
		Channel: &models.ChannelPayload{
			CID: "messaging:a",
			Members: []models.MemberPayload{
				{User: &models.UserPayload{ID: me}},
				{User: &models.UserPayload{ID: "u2"}},
			},
		},
		Messages: []models.MessagePayload{
			{ID: "m1", CID: "messaging:a", User: &models.UserPayload{ID: "u2"}, CreatedAt: base},
			{ID: "m2", CID: "messaging:a", User: &models.UserPayload{ID: "u2"}, CreatedAt: base.Add(2 * time.Minute),
				MentionedUsers: []models.UserPayload{{ID: me}}},
		},
		WatcherCount: 3,
		Reads: []models.ReadStatePayload{
			{User: &models.UserPayload{ID: me}, LastReadAt: lastRead, UnreadMessages: 1},
			{User: &models.UserPayload{ID: "u2"}, LastReadAt: base, UnreadMessages: 7},
		},
	}

	ch, err := rt.ApplyChannelResponse(ctx, resp)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{me, "u2"}, ch.MemberIDs)
	assert.Equal(t, 3, ch.WatcherCount)
	// the current user's marker seeds the counters; u2's is ignored
	assert.Equal(t, 1, ch.Unread.Messages)
	assert.Equal(t, 1, ch.Unread.MentionedMessages)

	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestApplyChannelResponseSkipsBadMessages(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	resp := models.ChannelResponse{
		Channel: &models.ChannelPayload{CID: "messaging:a"},
		Messages: []models.MessagePayload{
			{ID: "", CID: "messaging:a"}, // undecodable
			{ID: "m2", CID: "messaging:a", CreatedAt: time.Now()},
		},
	}

	_, err := rt.ApplyChannelResponse(ctx, resp)
	require.NoError(t, err)

	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestApplyChannelListSkipsBadChannels(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	channels := rt.ApplyChannelList(ctx, models.ChannelListResponse{
		Channels: []models.ChannelResponse{
			{Channel: &models.ChannelPayload{CID: "not-a-cid"}},
			{Channel: &models.ChannelPayload{CID: "messaging:ok"}},
		},
	})
	require.Len(t, channels, 1)
	assert.Equal(t, models.CID("messaging:ok"), channels[0].CID)
}

func TestApplyMessageResponseSwapsProvisional(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	// local provisional send
	provisional := models.Message{
		ID:         "prov-1",
		CID:        "messaging:a",
		UserID:     me,
		Text:       "hi",
		LocalState: models.LocalMessagePending,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, rt.Store().Messages().Upsert(ctx, provisional))

	msg, err := rt.ApplyMessageResponse(ctx, "prov-1", models.MessageResponse{
		Message: &models.MessagePayload{
			ID:        "srv-9",
			CID:       "messaging:a",
			User:      &models.UserPayload{ID: me},
			Text:      "hi",
			CreatedAt: time.Now(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-9", msg.ID)
	assert.Equal(t, models.LocalMessageNone, msg.LocalState)

	_, err = rt.Store().Messages().Get(ctx, "prov-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// own ack resets unread
	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)
}

func TestPerChannelOrderUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	rt := newTestRouter(t)

	base := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = rt.Apply(ctx, messageEvent("messaging:b", fmt.Sprintf("b%02d", i), "u2", base.Add(time.Duration(i)*time.Millisecond)))
		}
	}()
	for i := 0; i < 50; i++ {
		require.NoError(t, rt.Apply(ctx, messageEvent("messaging:a", fmt.Sprintf("a%02d", i), "u2", base.Add(time.Duration(i)*time.Millisecond))))
	}
	<-done

	chA, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, 50, chA.Unread.Messages)
	chB, err := rt.Store().Channels().Get(ctx, "messaging:b")
	require.NoError(t, err)
	assert.Equal(t, 50, chB.Unread.Messages)
}
