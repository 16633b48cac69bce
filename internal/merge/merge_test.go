package merge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

func TestDecodeExtraFullMap(t *testing.T) {
	extra := DecodeExtra(context.Background(), json.RawMessage(`{"name":"Deals","image":"http://x/y.png","topic":"bikes"}`))
	assert.Equal(t, "Deals", extra["name"])
	assert.Equal(t, "bikes", extra["topic"])
}

func TestDecodeExtraFallsBackToMinimalShape(t *testing.T) {
	// not an object, full decode fails, minimal struct decode also fails:
	// merge continues with no extra data rather than erroring
	extra := DecodeExtra(context.Background(), json.RawMessage(`["oops"]`))
	assert.Nil(t, extra)

	// object whose known fields decode even though we only keep name/image
	extra = DecodeExtra(context.Background(), json.RawMessage(`{"name":"Deals","image":"img"}`))
	assert.Equal(t, "Deals", extra["name"])
	assert.Equal(t, "img", extra["image"])
}

func TestUserMergePrefersPayloadAndFallsBackToExtra(t *testing.T) {
	ctx := context.Background()

	user, err := User(ctx, nil, models.UserPayload{
		ID:        "u1",
		ExtraData: json.RawMessage(`{"name":"Ann","image":"http://img"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "http://img", user.ImageURL)

	// a later partial payload without a name keeps the known one
	existing := user
	user, err = User(ctx, &existing, models.UserPayload{ID: "u1", Online: true})
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)
	assert.True(t, user.Online)
}

func TestUserMergeRequiresID(t *testing.T) {
	_, err := User(context.Background(), nil, models.UserPayload{Name: "ghost"})
	assert.ErrorIs(t, err, models.ErrDecode)
}

func TestChannelMergeUnionsMembersOnPartialPayload(t *testing.T) {
	ctx := context.Background()
	existing := models.Channel{
		CID:       "messaging:general",
		Type:      "messaging",
		MemberIDs: []string{"a", "b"},
	}

	res, err := Channel(ctx, &existing, models.ChannelPayload{
		CID: "messaging:general",
		Members: []models.MemberPayload{
			{User: &models.UserPayload{ID: "b"}},
			{User: &models.UserPayload{ID: "c"}},
		},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.Channel.MemberIDs)
	assert.Equal(t, 3, res.Channel.MemberCount)
}

func TestChannelMergeReplacesMembersOnSnapshot(t *testing.T) {
	ctx := context.Background()
	existing := models.Channel{
		CID:       "messaging:general",
		MemberIDs: []string{"a", "b", "stale"},
	}

	res, err := Channel(ctx, &existing, models.ChannelPayload{
		CID: "messaging:general",
		Members: []models.MemberPayload{
			{User: &models.UserPayload{ID: "a"}},
			{User: &models.UserPayload{ID: "b"}},
		},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Channel.MemberIDs)
}

func TestChannelMergePreservesLocalState(t *testing.T) {
	ctx := context.Background()
	lastMsg := time.Now()
	existing := models.Channel{
		CID:          "messaging:general",
		Unread:       models.UnreadCount{Messages: 4, MentionedMessages: 1},
		WatcherIDs:   []string{"w1"},
		WatcherCount: 1,
		LastMessageAt: &lastMsg,
	}

	res, err := Channel(ctx, &existing, models.ChannelPayload{
		CID:       "messaging:general",
		Frozen:    true,
		ExtraData: json.RawMessage(`{"name":"Renamed"}`),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Channel.Unread.Messages)
	assert.Equal(t, []string{"w1"}, res.Channel.WatcherIDs)
	assert.True(t, res.Channel.Frozen)
	assert.Equal(t, "Renamed", res.Channel.Name)
	assert.Equal(t, lastMsg.Unix(), res.Channel.LastMessageAt.Unix())
}

func TestChannelMergeSkipsBadMemberEntries(t *testing.T) {
	res, err := Channel(context.Background(), nil, models.ChannelPayload{
		CID: "messaging:general",
		Members: []models.MemberPayload{
			{User: &models.UserPayload{ID: "good"}},
			{User: &models.UserPayload{}}, // missing id
		},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, res.Channel.MemberIDs)
}

func TestChannelMergeRejectsMalformedCID(t *testing.T) {
	_, err := Channel(context.Background(), nil, models.ChannelPayload{CID: "no-colon"}, true)
	assert.ErrorIs(t, err, models.ErrDecode)
}

func TestAddRemoveMembers(t *testing.T) {
	ch := models.Channel{CID: "messaging:general", MemberIDs: []string{"a", "b"}}

	ch, _ = AddMembers(ch, []models.Member{
		{CID: ch.CID, UserID: "b"},
		{CID: ch.CID, UserID: "c"},
	})
	assert.Equal(t, []string{"a", "b", "c"}, ch.MemberIDs)
	assert.Equal(t, 3, ch.MemberCount)

	// re-adding is a no-op
	ch, _ = AddMembers(ch, []models.Member{{CID: ch.CID, UserID: "c"}})
	assert.Equal(t, []string{"a", "b", "c"}, ch.MemberIDs)

	ch, _ = RemoveMembers(ch, []string{"a", "missing"})
	assert.Equal(t, []string{"b", "c"}, ch.MemberIDs)
	assert.Equal(t, 2, ch.MemberCount)
}

func TestMessageMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	payload := models.MessagePayload{
		ID:        "m1",
		CID:       "messaging:general",
		User:      &models.UserPayload{ID: "u2"},
		Type:      models.MessageRegular,
		Text:      "hello",
		CreatedAt: time.Now(),
	}

	first, err := Message(ctx, nil, payload)
	require.NoError(t, err)
	assert.False(t, first.Existed)

	second, err := Message(ctx, &first.Message, payload)
	require.NoError(t, err)
	assert.Equal(t, first.Message, second.Message)
	assert.True(t, second.Existed)
}

func TestMessageMergeEditsInPlace(t *testing.T) {
	ctx := context.Background()
	created := time.Now().Add(-time.Hour)

	existing := models.Message{
		ID:        "m1",
		CID:       "messaging:general",
		UserID:    "u2",
		Text:      "hello",
		CreatedAt: created,
	}
	res, err := Message(ctx, &existing, models.MessagePayload{
		ID:        "m1",
		CID:       "messaging:general",
		Text:      "hello, edited",
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", res.Message.Text)
	// created timestamp survives the edit so ordering is stable
	assert.Equal(t, created.Unix(), res.Message.CreatedAt.Unix())
}

func TestMessageMergeReplacesReactionsWholesale(t *testing.T) {
	ctx := context.Background()
	existing := models.Message{
		ID:  "m1",
		CID: "messaging:general",
		Reactions: models.ReactionSummary{
			Counts: map[string]int{"like": 3, "wow": 1},
		},
	}

	res, err := Message(ctx, &existing, models.MessagePayload{
		ID:             "m1",
		CID:            "messaging:general",
		ReactionCounts: map[string]int{"like": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"like": 2}, res.Message.Reactions.Counts)
	assert.NotContains(t, res.Message.Reactions.Counts, "wow")
}

func TestMessageMergeDeletedBecomesTombstone(t *testing.T) {
	now := time.Now()
	res, err := Message(context.Background(), nil, models.MessagePayload{
		ID:        "m1",
		CID:       "messaging:general",
		DeletedAt: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageDeleted, res.Message.Type)
	assert.True(t, res.Message.IsDeleted())
}

func TestMessageMergeRequiresIDAndCID(t *testing.T) {
	_, err := Message(context.Background(), nil, models.MessagePayload{CID: "messaging:general"})
	assert.ErrorIs(t, err, models.ErrDecode)

	_, err = Message(context.Background(), nil, models.MessagePayload{ID: "m1"})
	assert.ErrorIs(t, err, models.ErrDecode)
}
