// Package chatapi is the REST collaborator: the hosted chat backend the
// sync core issues commands against. Transport framing lives here; the
// payload shapes it returns are the models package's wire types.
package chatapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

type Client interface {
	QueryChannels(ctx context.Context, query ChannelListQuery) (*models.ChannelListResponse, error)
	QueryChannel(ctx context.Context, cid models.CID, messageLimit int) (*models.ChannelResponse, error)
	SendMessage(ctx context.Context, cid models.CID, draft MessageDraft) (*models.MessageResponse, error)
	MarkRead(ctx context.Context, cid models.CID) error
	AddMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error)
	RemoveMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error)
	BanUser(ctx context.Context, cid models.CID, userID string, timeoutMinutes int) error
}

// ChannelListQuery mirrors a registered query spec plus its pagination
// window.
type ChannelListQuery struct {
	Filter       queryindex.Filter `json:"filter_conditions"`
	Sort         []queryindex.Sort `json:"sort"`
	Limit        int               `json:"limit"`
	Offset       int               `json:"offset"`
	MessageLimit int               `json:"message_limit"`
}

// MessageDraft is a locally composed message awaiting the server.
type MessageDraft struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	ParentID         string              `json:"parent_id,omitempty"`
	Attachments      []models.Attachment `json:"attachments,omitempty"`
	MentionedUserIDs []string            `json:"mentioned_user_ids,omitempty"`
}

type client struct {
	http *resty.Client
}

func NewClient(conf *config.Config) Client {
	httpClient := util.NewRestyClient().
		SetBaseURL(conf.ChatAPI.BaseURL).
		SetHeader("Authorization", "Bearer "+conf.ChatAPI.APIKey).
		SetHeader("X-Project-ID", conf.ChatAPI.ProjectID)
	return &client{http: httpClient}
}

func (c *client) QueryChannels(ctx context.Context, query ChannelListQuery) (*models.ChannelListResponse, error) {
	out := &models.ChannelListResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(out).
		Post("/v1/channels/query")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	return out, nil
}

func (c *client) QueryChannel(ctx context.Context, cid models.CID, messageLimit int) (*models.ChannelResponse, error) {
	out := &models.ChannelResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(channelParams(cid)).
		SetQueryParam("message_limit", fmt.Sprint(messageLimit)).
		SetResult(out).
		Get("/v1/channels/{type}/{id}")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("query channel %s: %w", cid, err)
	}
	return out, nil
}

func (c *client) SendMessage(ctx context.Context, cid models.CID, draft MessageDraft) (*models.MessageResponse, error) {
	out := &models.MessageResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(channelParams(cid)).
		SetBody(map[string]any{"message": draft}).
		SetResult(out).
		Post("/v1/channels/{type}/{id}/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *client) MarkRead(ctx context.Context, cid models.CID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(channelParams(cid)).
		Post("/v1/channels/{type}/{id}/read")
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *client) AddMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error) {
	return c.updateMembers(ctx, cid, map[string]any{"add_members": userIDs})
}

func (c *client) RemoveMembers(ctx context.Context, cid models.CID, userIDs []string) (*models.ChannelResponse, error) {
	return c.updateMembers(ctx, cid, map[string]any{"remove_members": userIDs})
}

func (c *client) updateMembers(ctx context.Context, cid models.CID, body map[string]any) (*models.ChannelResponse, error) {
	out := &models.ChannelResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(channelParams(cid)).
		SetBody(body).
		SetResult(out).
		Post("/v1/channels/{type}/{id}")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("update members: %w", err)
	}
	return out, nil
}

func (c *client) BanUser(ctx context.Context, cid models.CID, userID string, timeoutMinutes int) error {
	body := map[string]any{
		"target_user_id": userID,
		"type":           cid.Type(),
		"id":             cid.ID(),
	}
	if timeoutMinutes > 0 {
		body["timeout"] = timeoutMinutes
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1/moderation/ban")
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return nil
}

func channelParams(cid models.CID) map[string]string {
	return map[string]string{
		"type": cid.Type(),
		"id":   cid.ID(),
	}
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return models.ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
