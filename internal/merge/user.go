package merge

import (
	"context"
	"fmt"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

// User merges a user payload into the existing user. Identity is immutable;
// presence and profile fields are last-write-wins because a server payload
// always supersedes the stale local copy.
func User(ctx context.Context, existing *models.User, p models.UserPayload) (models.User, error) {
	if p.ID == "" {
		return models.User{}, fmt.Errorf("%w: user payload without id", models.ErrDecode)
	}

	extra := DecodeExtra(ctx, p.ExtraData)
	merged := models.User{
		ID:           p.ID,
		Name:         p.Name,
		ImageURL:     p.ImageURL,
		Role:         p.Role,
		Online:       p.Online,
		Banned:       p.Banned,
		Teams:        p.Teams,
		ExtraData:    extra,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		LastActiveAt: p.LastActiveAt,
		DeletedAt:    p.DeletedAt,
	}
	if merged.Name == "" {
		merged.Name = extraString(extra, "name")
	}
	if merged.ImageURL == "" {
		merged.ImageURL = extraString(extra, "image")
	}

	if existing != nil {
		if merged.Name == "" {
			merged.Name = existing.Name
		}
		if merged.ImageURL == "" {
			merged.ImageURL = existing.ImageURL
		}
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		if merged.UpdatedAt.IsZero() {
			merged.UpdatedAt = existing.UpdatedAt
		}
	}
	return merged, nil
}

// Member merges a member payload for a channel. The (cid, user id) pair is
// the identity; everything else is overwritten.
func Member(ctx context.Context, cid models.CID, existing *models.Member, p models.MemberPayload) (models.Member, error) {
	userID := p.UserID
	if userID == "" && p.User != nil {
		userID = p.User.ID
	}
	if userID == "" {
		return models.Member{}, fmt.Errorf("%w: member payload without user id", models.ErrDecode)
	}

	merged := models.Member{
		CID:              cid,
		UserID:           userID,
		Role:             p.Role,
		InviteState:      p.InviteState,
		InvitedAt:        p.InvitedAt,
		InviteAnsweredAt: p.InviteAnsweredAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if existing != nil && merged.CreatedAt.IsZero() {
		merged.CreatedAt = existing.CreatedAt
	}
	return merged, nil
}
