package mongodb

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/store"
)

type Store struct {
	channels *channelRepo
	messages *messageRepo
	users    *userRepo
	members  *memberRepo
	queries  *queryRepo
}

var _ store.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		channels: &channelRepo{newBaseRepo[models.Channel](db.Database)},
		messages: &messageRepo{newBaseRepo[models.Message](db.Database)},
		users:    &userRepo{newBaseRepo[models.User](db.Database)},
		members:  &memberRepo{newBaseRepo[models.Member](db.Database)},
		queries:  &queryRepo{newBaseRepo[queryResult](db.Database)},
	}
}

func (s *Store) Channels() store.ChannelStore { return s.channels }
func (s *Store) Messages() store.MessageStore { return s.messages }
func (s *Store) Users() store.UserStore       { return s.users }
func (s *Store) Members() store.MemberStore   { return s.members }
func (s *Store) Queries() store.QueryStore    { return s.queries }

type channelRepo struct {
	baseRepo[models.Channel]
}

func (r *channelRepo) LoadOrCreate(ctx context.Context, cid models.CID) (models.Channel, error) {
	ch, err := r.FindByKey(ctx, string(cid))
	if err == nil {
		return *ch, nil
	}
	if err != models.ErrNotFound {
		return models.Channel{}, err
	}
	placeholder := models.Channel{CID: cid, Type: cid.Type()}
	if err := r.UpsertByKey(ctx, placeholder); err != nil {
		return models.Channel{}, err
	}
	return placeholder, nil
}

func (r *channelRepo) Get(ctx context.Context, cid models.CID) (models.Channel, error) {
	ch, err := r.FindByKey(ctx, string(cid))
	if err != nil {
		return models.Channel{}, err
	}
	return *ch, nil
}

func (r *channelRepo) Upsert(ctx context.Context, ch models.Channel) error {
	return r.UpsertByKey(ctx, ch)
}

func (r *channelRepo) Delete(ctx context.Context, cid models.CID, at time.Time) error {
	return r.UpdateByKey(ctx, string(cid), bson.M{"deleted_at": at})
}

func (r *channelRepo) Query(ctx context.Context, pred func(models.Channel) bool) ([]models.Channel, error) {
	// predicates are evaluated client-side: the mongo mirror is a local
	// cache, not a shared database, so the table stays small
	var out []models.Channel
	err := r.Iterate(ctx, bson.M{"deleted_at": nil}, func(ch models.Channel) error {
		if pred == nil || pred(ch) {
			out = append(out, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
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

type messageRepo struct {
	baseRepo[models.Message]
}

func (r *messageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	msg, err := r.FindByKey(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	return *msg, nil
}

func (r *messageRepo) Upsert(ctx context.Context, msg models.Message) error {
	return r.UpsertByKey(ctx, msg)
}

func (r *messageRepo) Delete(ctx context.Context, id string, at time.Time) error {
	return r.UpdateByKey(ctx, id, bson.M{
		"deleted_at": at,
		"type":       models.MessageDeleted,
	})
}

func (r *messageRepo) Remove(ctx context.Context, id string) error {
	err := r.DeleteByKey(ctx, id)
	if err == models.ErrNotFound {
		return nil
	}
	return err
}

func (r *messageRepo) ListByChannel(ctx context.Context, cid models.CID, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	msgs, err := r.Find(ctx, bson.M{"cid": cid}, opts)
	if err != nil {
		return nil, err
	}
	// newest page fetched descending, returned ascending
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs, nil
}

func (r *messageRepo) TruncateChannel(ctx context.Context, cid models.CID, at time.Time) error {
	return r.UpdateMany(ctx,
		bson.M{"cid": cid, "deleted_at": nil},
		bson.M{"deleted_at": at, "type": models.MessageDeleted},
	)
}

type userRepo struct {
	baseRepo[models.User]
}

func (r *userRepo) Get(ctx context.Context, id string) (models.User, error) {
	user, err := r.FindByKey(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	return *user, nil
}

func (r *userRepo) Upsert(ctx context.Context, user models.User) error {
	return r.UpsertByKey(ctx, user)
}

type memberRepo struct {
	baseRepo[models.Member]
}

func (r *memberRepo) Get(ctx context.Context, cid models.CID, userID string) (models.Member, error) {
	m, err := r.FindOne(ctx, bson.M{"cid": cid, "user_id": userID})
	if err != nil {
		return models.Member{}, err
	}
	return *m, nil
}

func (r *memberRepo) Upsert(ctx context.Context, member models.Member) error {
	return r.UpsertByKey(ctx, member)
}

func (r *memberRepo) Delete(ctx context.Context, cid models.CID, userID string) error {
	err := r.DeleteByKey(ctx, string(cid)+"/"+userID)
	if err == models.ErrNotFound {
		return nil
	}
	return err
}

func (r *memberRepo) ListByChannel(ctx context.Context, cid models.CID) ([]models.Member, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	return r.Find(ctx, bson.M{"cid": cid}, opts)
}

// queryResult is the persisted index table for one registered query.
type queryResult struct {
	Hash      string       `bson:"_id"`
	CIDs      []models.CID `bson:"cids"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

func (queryResult) CollectionName() string { return "queries" }

func (q queryResult) Key() string { return q.Hash }

type queryRepo struct {
	baseRepo[queryResult]
}

func (r *queryRepo) Save(ctx context.Context, queryHash string, cids []models.CID) error {
	return r.UpsertByKey(ctx, queryResult{
		Hash:      queryHash,
		CIDs:      cids,
		UpdatedAt: time.Now(),
	})
}

func (r *queryRepo) Load(ctx context.Context, queryHash string) ([]models.CID, error) {
	result, err := r.FindByKey(ctx, queryHash)
	if err != nil {
		return nil, err
	}
	return result.CIDs, nil
}
