package queryindex

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

func channelAt(cid string, lastMsg time.Time) models.Channel {
	return models.Channel{
		CID:           models.CID(cid),
		Type:          "messaging",
		LastMessageAt: &lastMsg,
		CreatedAt:     lastMsg.Add(-time.Hour),
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	ix := NewIndex()
	spec := Spec{Filter: Filter{Field: "type", Op: OpEqual, Value: "messaging"}}

	id1 := ix.Register(spec)
	ix.ApplyUpsert(channelAt("messaging:a", time.Now()))

	id2 := ix.Register(spec)
	assert.Equal(t, id1, id2)

	// re-registering kept the accumulated result set
	cids, _ := ix.Page(id2, "", 10)
	assert.Equal(t, []models.CID{"messaging:a"}, cids)
}

func TestSpecIdentityIsContentBased(t *testing.T) {
	a := Spec{Filter: Filter{Field: "type", Op: OpEqual, Value: "messaging"}}
	b := Spec{Filter: Filter{Field: "type", Op: OpEqual, Value: "messaging"}}
	c := Spec{Filter: Filter{Field: "type", Op: OpEqual, Value: "team"}}

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())

	// explicit default sort hashes the same as the implicit one
	d := Spec{Filter: a.Filter, Sort: DefaultSort()}
	assert.Equal(t, a.ID(), d.ID())
}

func TestOrderingWithTieBreak(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// equal activity timestamps: order falls back to cid ascending
	ix.ApplyUpsert(channelAt("messaging:b", at))
	ix.ApplyUpsert(channelAt("messaging:a", at))

	cids, hasMore := ix.Page(id, "", 10)
	assert.False(t, hasMore)
	assert.Equal(t, []models.CID{"messaging:a", "messaging:b"}, cids)
}

func TestUpsertMovesChannelOnNewActivity(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{})

	base := time.Now()
	ix.ApplyUpsert(channelAt("messaging:a", base.Add(-time.Hour)))
	ix.ApplyUpsert(channelAt("messaging:b", base))

	cids, _ := ix.Page(id, "", 10)
	require.Equal(t, []models.CID{"messaging:b", "messaging:a"}, cids)

	// a gets a newer message and jumps to the front without duplicating
	ix.ApplyUpsert(channelAt("messaging:a", base.Add(time.Minute)))
	cids, _ = ix.Page(id, "", 10)
	assert.Equal(t, []models.CID{"messaging:a", "messaging:b"}, cids)
}

func TestFilterMembership(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{Filter: Filter{Field: "members", Op: OpContains, Value: "u1"}})

	ch := channelAt("messaging:a", time.Now())
	ch.MemberIDs = []string{"u1", "u2"}
	ix.ApplyUpsert(ch)

	cids, _ := ix.Page(id, "", 10)
	require.Equal(t, []models.CID{"messaging:a"}, cids)

	// losing membership drops the channel from the result set
	ch.MemberIDs = []string{"u2"}
	ix.ApplyUpsert(ch)
	cids, _ = ix.Page(id, "", 10)
	assert.Empty(t, cids)
}

func TestDeletedChannelLeavesEveryQuery(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{})

	now := time.Now()
	ch := channelAt("messaging:a", now)
	ix.ApplyUpsert(ch)

	ch.DeletedAt = &now
	ix.ApplyUpsert(ch)
	cids, _ := ix.Page(id, "", 10)
	assert.Empty(t, cids)
}

func TestPagination(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ix.ApplyUpsert(channelAt(fmt.Sprintf("messaging:c%d", i), base.Add(time.Duration(-i)*time.Minute)))
	}

	first, hasMore := ix.Page(id, "", 2)
	require.True(t, hasMore)
	require.Equal(t, []models.CID{"messaging:c0", "messaging:c1"}, first)

	second, hasMore := ix.Page(id, first[len(first)-1], 2)
	require.True(t, hasMore)
	require.Equal(t, []models.CID{"messaging:c2", "messaging:c3"}, second)

	last, hasMore := ix.Page(id, second[len(second)-1], 2)
	assert.False(t, hasMore)
	assert.Equal(t, []models.CID{"messaging:c4"}, last)
}

func TestRebuildFromChannels(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{Filter: Filter{Field: "type", Op: OpEqual, Value: "messaging"}})

	now := time.Now()
	other := channelAt("team:x", now)
	other.Type = "team"
	ix.Rebuild([]models.Channel{
		channelAt("messaging:a", now.Add(-time.Minute)),
		channelAt("messaging:b", now),
		other,
	})

	cids, _ := ix.Page(id, "", 10)
	assert.Equal(t, []models.CID{"messaging:b", "messaging:a"}, cids)
}

func TestSortByMemberCount(t *testing.T) {
	ix := NewIndex()
	id := ix.Register(Spec{Sort: []Sort{{Field: SortMemberCount, Desc: true}}})

	now := time.Now()
	small := channelAt("messaging:small", now)
	small.MemberCount = 2
	big := channelAt("messaging:big", now)
	big.MemberCount = 9
	ix.ApplyUpsert(small)
	ix.ApplyUpsert(big)

	cids, _ := ix.Page(id, "", 10)
	assert.Equal(t, []models.CID{"messaging:big", "messaging:small"}, cids)
}
