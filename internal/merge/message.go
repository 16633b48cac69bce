package merge

import (
	"context"
	"fmt"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// MessageResult carries the merged message plus users referenced by the
// payload (author, mentioned users) that should be upserted with it.
// Existed reports whether the message was already known; replayed
// deliveries must not re-run unread accounting.
type MessageResult struct {
	Message       models.Message
	Users         []models.User
	Invalidations []Invalidation
	Existed       bool
}

// Message merges a message payload into the existing message. An id match
// with a different updated_at is an edit and replaces the value in place;
// the caller must keep its list position (the ordering key is created_at,
// which edits never change). A deleted_at marker tombstones the message
// without removing it, so pagination stays stable. The embedded reaction
// list and score maps replace the aggregate wholesale, which is how
// reaction.new / reaction.deleted arrive from the server.
func Message(ctx context.Context, existing *models.Message, p models.MessagePayload) (MessageResult, error) {
	if p.ID == "" {
		return MessageResult{}, fmt.Errorf("%w: message payload without id", models.ErrDecode)
	}
	var cid models.CID
	if p.CID != "" {
		var err error
		if cid, err = models.ParseCID(p.CID); err != nil {
			return MessageResult{}, fmt.Errorf("message payload: %w", err)
		}
	} else if existing != nil {
		cid = existing.CID
	} else {
		return MessageResult{}, fmt.Errorf("%w: message payload without cid", models.ErrDecode)
	}

	merged := models.Message{
		ID:          p.ID,
		CID:         cid,
		ParentID:    p.ParentID,
		Type:        p.Type,
		Text:        p.Text,
		Attachments: p.Attachments,
		Reactions: models.ReactionSummary{
			Counts: p.ReactionCounts,
			Scores: p.ReactionScores,
			Latest: p.LatestReactions,
		},
		MentionedUserIDs: util.ConvertList(p.MentionedUsers, func(u models.UserPayload) string {
			return u.ID
		}),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		DeletedAt: p.DeletedAt,
	}
	if p.User != nil {
		merged.UserID = p.User.ID
	}
	if merged.Type == "" {
		merged.Type = models.MessageRegular
	}
	if merged.DeletedAt != nil {
		merged.Type = models.MessageDeleted
	}

	result := MessageResult{}
	if p.User != nil {
		if user, err := User(ctx, nil, *p.User); err == nil {
			result.Users = append(result.Users, user)
		}
	}
	for _, up := range p.MentionedUsers {
		if user, err := User(ctx, nil, up); err == nil {
			result.Users = append(result.Users, user)
		}
	}

	if existing != nil {
		result.Existed = true
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		if merged.UserID == "" {
			merged.UserID = existing.UserID
		}
		// server ack of a local provisional send clears the local state
	}

	result.Message = merged
	result.Invalidations = invalidateAll(cid)
	return result, nil
}
