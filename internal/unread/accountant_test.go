package unread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

const me = "u1"

func msgAt(id, userID string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		CID:       "messaging:general",
		UserID:    userID,
		Type:      models.MessageRegular,
		CreatedAt: at,
	}
}

func TestOnMessageNew(t *testing.T) {
	a := NewAccountant(me)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ch := models.Channel{CID: "messaging:general"}

	ch = a.OnMessageNew(ch, msgAt("m1", "u2", base))
	ch = a.OnMessageNew(ch, msgAt("m2", "u3", base.Add(time.Minute)))
	assert.Equal(t, 2, ch.Unread.Messages)
	assert.Equal(t, 0, ch.Unread.MentionedMessages)

	mention := msgAt("m3", "u2", base.Add(2*time.Minute))
	mention.MentionedUserIDs = []string{me}
	ch = a.OnMessageNew(ch, mention)
	assert.Equal(t, 3, ch.Unread.Messages)
	assert.Equal(t, 1, ch.Unread.MentionedMessages)
}

func TestOnMessageNewOwnMessageResets(t *testing.T) {
	a := NewAccountant(me)
	base := time.Now()
	ch := models.Channel{CID: "messaging:general"}

	ch = a.OnMessageNew(ch, msgAt("m1", "u2", base))
	ch = a.OnMessageNew(ch, msgAt("m2", "u2", base.Add(time.Second)))
	assert.Equal(t, 2, ch.Unread.Messages)

	own := msgAt("m3", me, base.Add(2*time.Second))
	ch = a.OnMessageNew(ch, own)
	assert.Equal(t, models.UnreadCount{}, ch.Unread)
	if assert.NotNil(t, ch.LastRead) {
		assert.Equal(t, "m3", ch.LastRead.LastReadMessageID)
	}
}

func TestOnMessageNewSkipsRepliesAndDeleted(t *testing.T) {
	a := NewAccountant(me)
	now := time.Now()
	ch := models.Channel{CID: "messaging:general"}

	reply := msgAt("m1", "u2", now)
	reply.ParentID = "m0"
	ch = a.OnMessageNew(ch, reply)

	deleted := msgAt("m2", "u2", now)
	deleted.DeletedAt = &now
	ch = a.OnMessageNew(ch, deleted)

	assert.Equal(t, models.UnreadCount{}, ch.Unread)
}

func TestOnMessageRead(t *testing.T) {
	a := NewAccountant(me)
	at := time.Now()
	ch := models.Channel{
		CID:    "messaging:general",
		Unread: models.UnreadCount{Messages: 5, MentionedMessages: 2},
	}

	// other users' receipts do not touch local counters
	got := a.OnMessageRead(ch, "u2", at)
	assert.Equal(t, 5, got.Unread.Messages)

	got = a.OnMessageRead(ch, me, at)
	assert.Equal(t, models.UnreadCount{}, got.Unread)
	if assert.NotNil(t, got.LastRead) {
		assert.Equal(t, at, got.LastRead.LastReadAt)
	}
}

func TestSeedWithMarker(t *testing.T) {
	a := NewAccountant(me)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lastRead := base.Add(5 * time.Minute)

	mention := msgAt("m3", "u2", base.Add(10*time.Minute))
	mention.MentionedUserIDs = []string{me}
	page := []models.Message{
		msgAt("m1", "u2", base),                   // before marker, ignored
		msgAt("m2", "u2", base.Add(6*time.Minute)), // after marker
		mention,
		msgAt("m4", "u3", base.Add(11*time.Minute)),
	}

	ch := a.Seed(models.Channel{CID: "messaging:general"}, page, &models.ReadStatePayload{
		LastReadAt:     lastRead,
		UnreadMessages: 3,
	})

	// message count comes straight from the server marker
	assert.Equal(t, 3, ch.Unread.Messages)
	assert.Equal(t, 1, ch.Unread.MentionedMessages)
	if assert.NotNil(t, ch.LastRead) {
		assert.Equal(t, lastRead, ch.LastRead.LastReadAt)
	}
}

func TestSeedMentionsNeverExceedMessages(t *testing.T) {
	a := NewAccountant(me)
	base := time.Now()

	var page []models.Message
	for i := 0; i < 4; i++ {
		m := msgAt(string(rune('a'+i)), "u2", base.Add(time.Duration(i)*time.Second))
		m.MentionedUserIDs = []string{me}
		page = append(page, m)
	}

	ch := a.Seed(models.Channel{}, page, &models.ReadStatePayload{
		LastReadAt:     base.Add(-time.Hour),
		UnreadMessages: 2,
	})
	assert.Equal(t, 2, ch.Unread.Messages)
	assert.Equal(t, 2, ch.Unread.MentionedMessages)
}

func TestSeedWithoutMarker(t *testing.T) {
	a := NewAccountant(me)
	base := time.Now()

	reply := msgAt("m3", "u2", base.Add(2*time.Second))
	reply.ParentID = "m1"
	page := []models.Message{
		msgAt("m1", "u2", base),
		msgAt("m2", me, base.Add(time.Second)),
		reply,
	}

	ch := a.Seed(models.Channel{}, page, nil)
	assert.Equal(t, 1, ch.Unread.Messages)
	assert.Nil(t, ch.LastRead)
}
