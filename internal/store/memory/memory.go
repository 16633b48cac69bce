// Package memory is the in-process entity store. It is the authoritative
// cache in client deployments; the mongodb store mirrors the same interface
// for durable edge deployments. Values are copied on read and write, so a
// caller can never alias the stored state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/store"
)

type Store struct {
	channels *channelTable
	messages *messageTable
	users    *userTable
	members  *memberTable
	queries  *queryTable
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		channels: &channelTable{items: map[models.CID]models.Channel{}},
		messages: &messageTable{items: map[string]models.Message{}},
		users:    &userTable{items: map[string]models.User{}},
		members:  &memberTable{items: map[string]models.Member{}},
		queries:  &queryTable{items: map[string][]models.CID{}},
	}
}

func (s *Store) Channels() store.ChannelStore { return s.channels }
func (s *Store) Messages() store.MessageStore { return s.messages }
func (s *Store) Users() store.UserStore       { return s.users }
func (s *Store) Members() store.MemberStore   { return s.members }
func (s *Store) Queries() store.QueryStore    { return s.queries }

type channelTable struct {
	mu    sync.RWMutex
	items map[models.CID]models.Channel
}

func (t *channelTable) LoadOrCreate(_ context.Context, cid models.CID) (models.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.items[cid]; ok {
		return copyChannel(ch), nil
	}
	ch := models.Channel{CID: cid, Type: cid.Type()}
	t.items[cid] = ch
	return ch, nil
}

func (t *channelTable) Get(_ context.Context, cid models.CID) (models.Channel, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.items[cid]
	if !ok {
		return models.Channel{}, models.ErrNotFound
	}
	return copyChannel(ch), nil
}

func (t *channelTable) Upsert(_ context.Context, ch models.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[ch.CID] = copyChannel(ch)
	return nil
}

func (t *channelTable) Delete(_ context.Context, cid models.CID, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.items[cid]
	if !ok {
		return models.ErrNotFound
	}
	ch.DeletedAt = &at
	t.items[cid] = ch
	return nil
}

func (t *channelTable) Query(_ context.Context, pred func(models.Channel) bool) ([]models.Channel, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Channel, 0, len(t.items))
	for _, ch := range t.items {
		if ch.IsDeleted() {
			continue
		}
		if pred != nil && !pred(ch) {
			continue
		}
		out = append(out, copyChannel(ch))
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivityAt(), out[j].LastActivityAt()
		if ai.Equal(aj) {
			return out[i].CID < out[j].CID
		}
		return ai.After(aj)
	})
	return out, nil
}

type messageTable struct {
	mu    sync.RWMutex
	items map[string]models.Message
}

func (t *messageTable) Get(_ context.Context, id string) (models.Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msg, ok := t.items[id]
	if !ok {
		return models.Message{}, models.ErrNotFound
	}
	return copyMessage(msg), nil
}

func (t *messageTable) Upsert(_ context.Context, msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[msg.ID] = copyMessage(msg)
	return nil
}

func (t *messageTable) Delete(_ context.Context, id string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg, ok := t.items[id]
	if !ok {
		return models.ErrNotFound
	}
	msg.DeletedAt = &at
	msg.Type = models.MessageDeleted
	t.items[id] = msg
	return nil
}

func (t *messageTable) Remove(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, id)
	return nil
}

func (t *messageTable) ListByChannel(_ context.Context, cid models.CID, limit int) ([]models.Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, msg := range t.items {
		if msg.CID == cid {
			out = append(out, copyMessage(msg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if limit > 0 && len(out) > limit {
		// keep the newest page
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (t *messageTable) TruncateChannel(_ context.Context, cid models.CID, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, msg := range t.items {
		if msg.CID != cid || msg.IsDeleted() {
			continue
		}
		msg.DeletedAt = &at
		msg.Type = models.MessageDeleted
		t.items[id] = msg
	}
	return nil
}

type userTable struct {
	mu    sync.RWMutex
	items map[string]models.User
}

func (t *userTable) Get(_ context.Context, id string) (models.User, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.items[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return copyUser(user), nil
}

func (t *userTable) Upsert(_ context.Context, user models.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[user.ID] = copyUser(user)
	return nil
}

type memberTable struct {
	mu    sync.RWMutex
	items map[string]models.Member
}

func (t *memberTable) Get(_ context.Context, cid models.CID, userID string) (models.Member, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.items[memberKey(cid, userID)]
	if !ok {
		return models.Member{}, models.ErrNotFound
	}
	return m, nil
}

func (t *memberTable) Upsert(_ context.Context, member models.Member) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[member.Key()] = member
	return nil
}

func (t *memberTable) Delete(_ context.Context, cid models.CID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, memberKey(cid, userID))
	return nil
}

func (t *memberTable) ListByChannel(_ context.Context, cid models.CID) ([]models.Member, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Member, 0)
	for _, m := range t.items {
		if m.CID == cid {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type queryTable struct {
	mu    sync.RWMutex
	items map[string][]models.CID
}

func (t *queryTable) Save(_ context.Context, queryHash string, cids []models.CID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[queryHash] = append([]models.CID(nil), cids...)
	return nil
}

func (t *queryTable) Load(_ context.Context, queryHash string) ([]models.CID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cids, ok := t.items[queryHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return append([]models.CID(nil), cids...), nil
}

func memberKey(cid models.CID, userID string) string {
	return string(cid) + "/" + userID
}

func copyChannel(ch models.Channel) models.Channel {
	ch.MemberIDs = append([]string(nil), ch.MemberIDs...)
	ch.WatcherIDs = append([]string(nil), ch.WatcherIDs...)
	ch.BannedUserIDs = append([]string(nil), ch.BannedUserIDs...)
	if ch.ExtraData != nil {
		extra := make(map[string]any, len(ch.ExtraData))
		for k, v := range ch.ExtraData {
			extra[k] = v
		}
		ch.ExtraData = extra
	}
	if ch.LastRead != nil {
		read := *ch.LastRead
		ch.LastRead = &read
	}
	return ch
}

func copyMessage(msg models.Message) models.Message {
	msg.Attachments = append([]models.Attachment(nil), msg.Attachments...)
	msg.MentionedUserIDs = append([]string(nil), msg.MentionedUserIDs...)
	msg.Reactions.Latest = append([]models.Reaction(nil), msg.Reactions.Latest...)
	if msg.Reactions.Counts != nil {
		counts := make(map[string]int, len(msg.Reactions.Counts))
		for k, v := range msg.Reactions.Counts {
			counts[k] = v
		}
		msg.Reactions.Counts = counts
	}
	if msg.Reactions.Scores != nil {
		scores := make(map[string]int, len(msg.Reactions.Scores))
		for k, v := range msg.Reactions.Scores {
			scores[k] = v
		}
		msg.Reactions.Scores = scores
	}
	return msg
}

func copyUser(user models.User) models.User {
	user.Teams = append([]string(nil), user.Teams...)
	if user.ExtraData != nil {
		extra := make(map[string]any, len(user.ExtraData))
		for k, v := range user.ExtraData {
			extra[k] = v
		}
		user.ExtraData = extra
	}
	return user
}
