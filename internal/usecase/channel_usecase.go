// Package usecase holds the command layer: every user-initiated operation
// goes through here, applying the local-first write and then reconciling
// with the backend's reply.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

type ChannelUsecase interface {
	QueryChannels(ctx context.Context, req QueryChannelsRequest) (*ChannelPage, error)
	NextPage(ctx context.Context, queryID queryindex.QueryID, cursor models.CID, limit int) (*ChannelPage, error)
	SyncChannel(ctx context.Context, cid models.CID, messageLimit int) (models.Channel, error)
	GetChannel(ctx context.Context, cid models.CID, messageLimit int) (*ChannelDetail, error)
	SendMessage(ctx context.Context, cid models.CID, draft chatapi.MessageDraft) (models.Message, error)
	MarkRead(ctx context.Context, cid models.CID) error
	AddMembers(ctx context.Context, cid models.CID, userIDs []string) error
	RemoveMembers(ctx context.Context, cid models.CID, userIDs []string) error
	BanUser(ctx context.Context, cid models.CID, userID string, timeoutMinutes int) error
	Resync(ctx context.Context) error
}

type QueryChannelsRequest struct {
	Filter       queryindex.Filter `json:"filter_conditions"`
	Sort         []queryindex.Sort `json:"sort"`
	Limit        int               `json:"limit"`
	MessageLimit int               `json:"message_limit"`
}

type ChannelPage struct {
	QueryID  queryindex.QueryID `json:"query_id"`
	Channels []models.Channel   `json:"channels"`
	HasMore  bool               `json:"has_more"`
}

type ChannelDetail struct {
	Channel  models.Channel   `json:"channel"`
	Messages []models.Message `json:"messages"`
	Members  []models.Member  `json:"members"`
}

const (
	defaultPageSize       = 20
	defaultMessageLimit   = 25
	sendMessageTimeout    = 30 * time.Second
	resyncMessageLimit    = 25
	resyncQueryBatchLimit = 30
	resyncConcurrency     = 4
)

type channelUsecase struct {
	api    chatapi.Client
	router *router.Router
}

func NewChannelUsecase(api chatapi.Client, rt *router.Router) ChannelUsecase {
	uc := &channelUsecase{
		api:    api,
		router: rt,
	}
	rt.SetResyncFunc(uc.Resync)
	return uc
}

// QueryChannels registers the query, fetches the first page from the
// backend and serves the result out of the local index. When the backend
// is unreachable the locally indexed set is served as-is.
func (uc *channelUsecase) QueryChannels(ctx context.Context, req QueryChannelsRequest) (*ChannelPage, error) {
	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}
	if req.MessageLimit <= 0 {
		req.MessageLimit = defaultMessageLimit
	}

	spec := queryindex.Spec{Filter: req.Filter, Sort: req.Sort}
	queryID := uc.router.Index().Register(spec)

	resp, err := uc.api.QueryChannels(ctx, chatapi.ChannelListQuery{
		Filter:       req.Filter,
		Sort:         req.Sort,
		Limit:        req.Limit,
		MessageLimit: req.MessageLimit,
	})
	if err != nil {
		log.Warnw(ctx, "query channels from backend failed, serving local index",
			"error", err, "query_id", queryID)
	} else {
		uc.router.ApplyChannelList(ctx, *resp)
	}

	return uc.pageFromIndex(ctx, queryID, "", req.Limit)
}

// NextPage serves a further page purely from the local index.
func (uc *channelUsecase) NextPage(ctx context.Context, queryID queryindex.QueryID, cursor models.CID, limit int) (*ChannelPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return uc.pageFromIndex(ctx, queryID, cursor, limit)
}

func (uc *channelUsecase) pageFromIndex(ctx context.Context, queryID queryindex.QueryID, cursor models.CID, limit int) (*ChannelPage, error) {
	cids, hasMore := uc.router.Index().Page(queryID, cursor, limit)
	if len(cids) == 0 && cursor == "" {
		// cold start: serve the persisted result set from the last run
		saved, err := uc.router.Store().Queries().Load(ctx, string(queryID))
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("load persisted query: %w", err)
		}
		if len(saved) > limit {
			saved, hasMore = saved[:limit], true
		}
		cids = saved
	}
	channels := make([]models.Channel, 0, len(cids))
	for _, cid := range cids {
		ch, err := uc.router.Store().Channels().Get(ctx, cid)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load channel %s: %w", cid, err)
		}
		channels = append(channels, ch)
	}
	return &ChannelPage{QueryID: queryID, Channels: channels, HasMore: hasMore}, nil
}

// SyncChannel refetches one channel's snapshot and merges it in.
func (uc *channelUsecase) SyncChannel(ctx context.Context, cid models.CID, messageLimit int) (models.Channel, error) {
	if messageLimit <= 0 {
		messageLimit = defaultMessageLimit
	}
	resp, err := uc.api.QueryChannel(ctx, cid, messageLimit)
	if err != nil {
		return models.Channel{}, fmt.Errorf("fetch channel %s: %w", cid, err)
	}
	return uc.router.ApplyChannelResponse(ctx, *resp)
}

// GetChannel reads the channel and its messages from the local store. It
// never touches the network.
func (uc *channelUsecase) GetChannel(ctx context.Context, cid models.CID, messageLimit int) (*ChannelDetail, error) {
	if messageLimit <= 0 {
		messageLimit = defaultMessageLimit
	}
	st := uc.router.Store()
	ch, err := st.Channels().Get(ctx, cid)
	if err != nil {
		return nil, err
	}
	msgs, err := st.Messages().ListByChannel(ctx, cid, messageLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	members, err := st.Members().ListByChannel(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return &ChannelDetail{Channel: ch, Messages: msgs, Members: members}, nil
}

// SendMessage stores a provisional pending message, ships the draft to the
// backend, and reconciles under the server-assigned id on ack. On failure
// the provisional message flips to failed and stays in place for retry.
func (uc *channelUsecase) SendMessage(ctx context.Context, cid models.CID, draft chatapi.MessageDraft) (models.Message, error) {
	if draft.ID == "" {
		draft.ID = primitive.NewObjectID().Hex()
	}

	now := time.Now()
	provisional := models.Message{
		ID:               draft.ID,
		CID:              cid,
		ParentID:         draft.ParentID,
		UserID:           uc.router.Accountant().CurrentUserID(),
		Type:             models.MessageRegular,
		Text:             draft.Text,
		Attachments:      draft.Attachments,
		MentionedUserIDs: draft.MentionedUserIDs,
		LocalState:       models.LocalMessagePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.router.Store().Messages().Upsert(ctx, provisional); err != nil {
		return models.Message{}, fmt.Errorf("store provisional message: %w", err)
	}

	sendCtx, cancel := util.NewTimeoutContext(ctx, sendMessageTimeout)
	defer cancel()

	resp, err := uc.api.SendMessage(sendCtx, cid, draft)
	if err != nil {
		provisional.LocalState = models.LocalMessageFailed
		provisional.UpdatedAt = time.Now()
		if storeErr := uc.router.Store().Messages().Upsert(ctx, provisional); storeErr != nil {
			log.Errorw(ctx, "mark provisional message failed", "error", storeErr, "id", provisional.ID)
		}
		return provisional, fmt.Errorf("send message: %w", err)
	}

	return uc.router.ApplyMessageResponse(ctx, draft.ID, *resp)
}

// MarkRead zeroes the local counters and tells the backend. Already-read
// channels are a no-op and never hit the network.
func (uc *channelUsecase) MarkRead(ctx context.Context, cid models.CID) error {
	st := uc.router.Store()
	ch, err := st.Channels().Get(ctx, cid)
	if err != nil {
		return err
	}
	if ch.Unread.Messages == 0 && ch.Unread.MentionedMessages == 0 {
		return nil
	}

	ev := models.Event{
		Type:      models.EventMessageRead,
		CID:       cid,
		User:      &models.UserPayload{ID: uc.router.Accountant().CurrentUserID()},
		CreatedAt: time.Now(),
	}
	if err := uc.router.ApplyLocal(ctx, ev); err != nil {
		return fmt.Errorf("apply local read: %w", err)
	}
	if err := uc.api.MarkRead(ctx, cid); err != nil {
		return fmt.Errorf("mark read on backend: %w", err)
	}
	return nil
}

// AddMembers sends only the user ids not already in the channel. An empty
// diff is a no-op without a network call.
func (uc *channelUsecase) AddMembers(ctx context.Context, cid models.CID, userIDs []string) error {
	ch, err := uc.router.Store().Channels().Get(ctx, cid)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	toAdd := util.Reject(userIDs, ch.HasMember)
	if len(toAdd) == 0 {
		return nil
	}
	resp, err := uc.api.AddMembers(ctx, cid, toAdd)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	_, err = uc.router.ApplyChannelResponse(ctx, *resp)
	return err
}

func (uc *channelUsecase) RemoveMembers(ctx context.Context, cid models.CID, userIDs []string) error {
	ch, err := uc.router.Store().Channels().Get(ctx, cid)
	if err != nil {
		return err
	}
	toRemove := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if ch.HasMember(id) {
			toRemove = append(toRemove, id)
		}
	}
	if len(toRemove) == 0 {
		return nil
	}
	resp, err := uc.api.RemoveMembers(ctx, cid, toRemove)
	if err != nil {
		return fmt.Errorf("remove members: %w", err)
	}
	_, err = uc.router.ApplyChannelResponse(ctx, *resp)
	return err
}

func (uc *channelUsecase) BanUser(ctx context.Context, cid models.CID, userID string, timeoutMinutes int) error {
	if err := uc.api.BanUser(ctx, cid, userID, timeoutMinutes); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	ev := models.Event{
		Type:      models.EventUserBanned,
		CID:       cid,
		User:      &models.UserPayload{ID: userID},
		CreatedAt: time.Now(),
	}
	return uc.router.ApplyLocal(ctx, ev)
}

// Resync refetches every registered query after a reconnect. Events missed
// while offline are not replayed; the fresh snapshots supersede them.
func (uc *channelUsecase) Resync(ctx context.Context) error {
	specs := uc.router.Index().Specs()
	log.Infow(ctx, "resync after reconnect", "queries", len(specs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(resyncConcurrency)
	for id, spec := range specs {
		eg.Go(func() error {
			resp, err := uc.api.QueryChannels(egCtx, chatapi.ChannelListQuery{
				Filter:       spec.Filter,
				Sort:         spec.Sort,
				Limit:        resyncQueryBatchLimit,
				MessageLimit: resyncMessageLimit,
			})
			if err != nil {
				return fmt.Errorf("resync query %s: %w", id, err)
			}
			uc.router.ApplyChannelList(egCtx, *resp)
			return nil
		})
	}
	return eg.Wait()
}
