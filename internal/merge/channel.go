package merge

import (
	"context"
	"fmt"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// ChannelResult carries the merged channel plus the entities embedded in
// the payload that must be persisted alongside it.
type ChannelResult struct {
	Channel       models.Channel
	Members       []models.Member
	Users         []models.User
	Invalidations []Invalidation
}

// Channel merges a channel payload into the existing channel. Incoming
// fields overwrite existing ones, with two exceptions:
//
//   - the member set is unioned for partial payloads (targeted events like
//     member.added) and replaced for snapshot payloads (channel-detail
//     responses carry the complete set);
//   - Unread, LastRead, WatcherIDs and WatcherCount are locally derived and
//     are left alone, the server list payload may be stale relative to
//     already-applied local events.
func Channel(ctx context.Context, existing *models.Channel, p models.ChannelPayload, snapshot bool) (ChannelResult, error) {
	cid, err := models.ParseCID(p.CID)
	if err != nil {
		return ChannelResult{}, fmt.Errorf("channel payload: %w", err)
	}

	extra := DecodeExtra(ctx, p.ExtraData)
	merged := models.Channel{
		CID:           cid,
		Type:          cid.Type(),
		Name:          extraString(extra, "name"),
		ImageURL:      extraString(extra, "image"),
		Config:        p.Config,
		Frozen:        p.Frozen,
		Cooldown:      p.Cooldown,
		ExtraData:     extra,
		MemberCount:   p.MemberCount,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		DeletedAt:     p.DeletedAt,
		LastMessageAt: p.LastMessageAt,
	}
	if p.CreatedBy != nil {
		merged.CreatedByID = p.CreatedBy.ID
	}

	result := ChannelResult{}
	memberIDs := make([]string, 0, len(p.Members))
	for _, mp := range p.Members {
		member, err := Member(ctx, cid, nil, mp)
		if err != nil {
			// a bad member entry must not abort the channel merge
			continue
		}
		memberIDs = append(memberIDs, member.UserID)
		result.Members = append(result.Members, member)
		if mp.User != nil {
			user, err := User(ctx, nil, *mp.User)
			if err == nil {
				result.Users = append(result.Users, user)
			}
		}
	}
	if p.CreatedBy != nil {
		if user, err := User(ctx, nil, *p.CreatedBy); err == nil {
			result.Users = append(result.Users, user)
		}
	}

	if existing != nil {
		// locally derived state survives every generic channel payload
		merged.Unread = existing.Unread
		merged.LastRead = existing.LastRead
		merged.WatcherIDs = existing.WatcherIDs
		merged.WatcherCount = existing.WatcherCount
		merged.BannedUserIDs = existing.BannedUserIDs

		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		if merged.CreatedByID == "" {
			merged.CreatedByID = existing.CreatedByID
		}
		if merged.LastMessageAt == nil {
			merged.LastMessageAt = existing.LastMessageAt
		}
		if merged.Name == "" {
			merged.Name = existing.Name
		}
		if merged.ImageURL == "" {
			merged.ImageURL = existing.ImageURL
		}

		if snapshot {
			merged.MemberIDs = dedupe(memberIDs)
		} else {
			merged.MemberIDs = dedupe(append(append([]string{}, existing.MemberIDs...), memberIDs...))
		}
	} else {
		merged.MemberIDs = dedupe(memberIDs)
	}

	if merged.MemberCount == 0 {
		merged.MemberCount = len(merged.MemberIDs)
	}

	result.Channel = merged
	result.Invalidations = invalidateAll(cid)
	return result, nil
}

// AddMembers unions new members into a channel without touching anything
// else. Identity is by user id, so re-adding an existing member is a no-op.
func AddMembers(ch models.Channel, members []models.Member) (models.Channel, []Invalidation) {
	ids := append([]string{}, ch.MemberIDs...)
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	ch.MemberIDs = dedupe(ids)
	ch.MemberCount = len(ch.MemberIDs)
	return ch, invalidateAll(ch.CID)
}

// RemoveMembers drops the given user ids from the channel's member set.
func RemoveMembers(ch models.Channel, userIDs []string) (models.Channel, []Invalidation) {
	ch.MemberIDs = util.Reject(ch.MemberIDs, func(id string) bool {
		return util.SliceIncludes(userIDs, id)
	})
	ch.MemberCount = len(ch.MemberIDs)
	return ch, invalidateAll(ch.CID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
