package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/internal/store/memory"
	"github.com/nguyentranbao-ct/chat-sync/internal/unread"
)

const me = "u1"

// fakeAPI records calls and serves canned responses.
type fakeAPI struct {
	queryChannelsResp *models.ChannelListResponse
	queryChannelResp  *models.ChannelResponse
	sendResp          *models.MessageResponse
	err               error

	sendCalls    int
	queryCalls   int
	markReadCIDs []models.CID
	addedMembers [][]string
	removed      [][]string
	banned       []string
}

func (f *fakeAPI) QueryChannels(ctx context.Context, q chatapi.ChannelListQuery) (*models.ChannelListResponse, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	if f.queryChannelsResp != nil {
		return f.queryChannelsResp, nil
	}
	return &models.ChannelListResponse{}, nil
}

func (f *fakeAPI) QueryChannel(ctx context.Context, cid models.CID, limit int) (*models.ChannelResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queryChannelResp, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, cid models.CID, draft chatapi.MessageDraft) (*models.MessageResponse, error) {
	f.sendCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sendResp, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, cid models.CID) error {
	f.markReadCIDs = append(f.markReadCIDs, cid)
	return f.err
}

func (f *fakeAPI) AddMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error) {
	f.addedMembers = append(f.addedMembers, userIDs)
	if f.err != nil {
		return nil, f.err
	}
	return channelSnapshot(cid, userIDs...), nil
}

func (f *fakeAPI) RemoveMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error) {
	f.removed = append(f.removed, userIDs)
	if f.err != nil {
		return nil, f.err
	}
	return channelSnapshot(cid), nil
}

func (f *fakeAPI) BanUser(ctx context.Context, cid models.CID, userID string, timeoutMinutes int) error {
	f.banned = append(f.banned, userID)
	return f.err
}

func channelSnapshot(cid models.CID, memberIDs ...string) *models.ChannelResponse {
	members := make([]models.MemberPayload, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, models.MemberPayload{User: &models.UserPayload{ID: id}})
	}
	return &models.ChannelResponse{
		Channel: &models.ChannelPayload{CID: string(cid), Members: members},
	}
}

func newTestUsecase(t *testing.T, api chatapi.Client) (ChannelUsecase, *router.Router) {
	t.Helper()
	rt := router.New(memory.NewStore(), queryindex.NewIndex(), unread.NewAccountant(me))
	rt.SetConnected(context.Background(), true)
	return NewChannelUsecase(api, rt), rt
}

func TestSendMessageSwapsProvisionalOnAck(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		sendResp: &models.MessageResponse{
			Message: &models.MessagePayload{
				ID:        "srv-1",
				CID:       "messaging:a",
				User:      &models.UserPayload{ID: me},
				Text:      "hi",
				CreatedAt: time.Now(),
			},
		},
	}
	uc, rt := newTestUsecase(t, api)

	msg, err := uc.SendMessage(ctx, "messaging:a", chatapi.MessageDraft{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, models.LocalMessageNone, msg.LocalState)

	msgs, err := rt.Store().Messages().ListByChannel(ctx, "messaging:a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
}

func TestSendMessageFailureKeepsFailedMessage(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{err: errors.New("backend down")}
	uc, rt := newTestUsecase(t, api)

	msg, err := uc.SendMessage(ctx, "messaging:a", chatapi.MessageDraft{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, models.LocalMessageFailed, msg.LocalState)

	stored, err := rt.Store().Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LocalMessageFailed, stored.LocalState)
	assert.Equal(t, me, stored.UserID)
}

func TestMarkReadIsNoopWhenAlreadyRead(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	uc, rt := newTestUsecase(t, api)

	require.NoError(t, rt.Store().Channels().Upsert(ctx, models.Channel{CID: "messaging:a"}))
	require.NoError(t, uc.MarkRead(ctx, "messaging:a"))
	assert.Empty(t, api.markReadCIDs)

	require.NoError(t, rt.Store().Channels().Upsert(ctx, models.Channel{
		CID:    "messaging:a",
		Unread: models.UnreadCount{Messages: 2},
	}))
	require.NoError(t, uc.MarkRead(ctx, "messaging:a"))
	require.Len(t, api.markReadCIDs, 1)

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)
}

func TestMarkReadClearsCountersWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	rt := router.New(memory.NewStore(), queryindex.NewIndex(), unread.NewAccountant(me))
	uc := NewChannelUsecase(api, rt)

	require.NoError(t, rt.Store().Channels().Upsert(ctx, models.Channel{
		CID:    "messaging:a",
		Unread: models.UnreadCount{Messages: 3, MentionedMessages: 1},
	}))

	require.NoError(t, uc.MarkRead(ctx, "messaging:a"))
	require.Len(t, api.markReadCIDs, 1)

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)
	require.NotNil(t, ch.LastRead)
	assert.Equal(t, me, ch.LastRead.UserID)
}

func TestAddMembersSendsOnlyTheDiff(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	uc, rt := newTestUsecase(t, api)

	require.NoError(t, rt.Store().Channels().Upsert(ctx, models.Channel{
		CID:       "messaging:a",
		MemberIDs: []string{"u2", "u3"},
	}))

	// all already members: no network call at all
	require.NoError(t, uc.AddMembers(ctx, "messaging:a", []string{"u2", "u3"}))
	assert.Empty(t, api.addedMembers)

	require.NoError(t, uc.AddMembers(ctx, "messaging:a", []string{"u3", "u4"}))
	require.Len(t, api.addedMembers, 1)
	assert.Equal(t, []string{"u4"}, api.addedMembers[0])
}

func TestRemoveMembersIgnoresNonMembers(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	uc, rt := newTestUsecase(t, api)

	require.NoError(t, rt.Store().Channels().Upsert(ctx, models.Channel{
		CID:       "messaging:a",
		MemberIDs: []string{"u2"},
	}))

	require.NoError(t, uc.RemoveMembers(ctx, "messaging:a", []string{"u9"}))
	assert.Empty(t, api.removed)

	require.NoError(t, uc.RemoveMembers(ctx, "messaging:a", []string{"u2", "u9"}))
	require.Len(t, api.removed, 1)
	assert.Equal(t, []string{"u2"}, api.removed[0])
}

func TestQueryChannelsServesLocalIndexWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		queryChannelsResp: &models.ChannelListResponse{
			Channels: []models.ChannelResponse{*channelSnapshot("messaging:a", me)},
		},
	}
	uc, _ := newTestUsecase(t, api)

	// first call online: registers the query and seeds the index
	first, err := uc.QueryChannels(ctx, QueryChannelsRequest{})
	require.NoError(t, err)
	require.Len(t, first.Channels, 1)

	api.err = errors.New("offline")
	page, err := uc.QueryChannels(ctx, QueryChannelsRequest{})
	require.NoError(t, err)
	require.Len(t, page.Channels, 1)
	assert.Equal(t, models.CID("messaging:a"), page.Channels[0].CID)
	assert.Equal(t, first.QueryID, page.QueryID)
	assert.False(t, page.HasMore)
}

func TestResyncRefetchesRegisteredQueries(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		queryChannelsResp: &models.ChannelListResponse{
			Channels: []models.ChannelResponse{*channelSnapshot("messaging:a", me)},
		},
	}
	uc, rt := newTestUsecase(t, api)

	_, err := uc.QueryChannels(ctx, QueryChannelsRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, api.queryCalls)

	rt.SetConnected(ctx, false)
	rt.SetConnected(ctx, true)
	assert.Equal(t, 2, api.queryCalls)

	ch, err := rt.Store().Channels().Get(ctx, "messaging:a")
	require.NoError(t, err)
	assert.Equal(t, models.CID("messaging:a"), ch.CID)
}
