package models

import "time"

type MessageType string

const (
	MessageRegular   MessageType = "regular"
	MessageSystem    MessageType = "system"
	MessageError     MessageType = "error"
	MessageEphemeral MessageType = "ephemeral"
	MessageDeleted   MessageType = "deleted"
)

// LocalMessageState tracks a message the local user created before the
// server acknowledged it. A failed send stays visible so the caller can
// offer retry or discard.
type LocalMessageState string

const (
	LocalMessageNone    LocalMessageState = ""
	LocalMessagePending LocalMessageState = "pending"
	LocalMessageFailed  LocalMessageState = "failed"
)

type Attachment struct {
	Type      string         `bson:"type" json:"type"`
	Title     string         `bson:"title" json:"title"`
	AssetURL  string         `bson:"asset_url" json:"asset_url"`
	ThumbURL  string         `bson:"thumb_url" json:"thumb_url"`
	ExtraData map[string]any `bson:"extra_data" json:"extra_data"`
}

type Reaction struct {
	Type      string    `bson:"type" json:"type"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Score     int       `bson:"score" json:"score"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ReactionSummary is the per-message reaction aggregate. Reaction events
// arrive as message-update payloads carrying a refreshed summary, which
// replaces this value wholesale.
type ReactionSummary struct {
	Counts map[string]int `bson:"counts" json:"counts"`
	Scores map[string]int `bson:"scores" json:"scores"`
	Latest []Reaction     `bson:"latest" json:"latest"`
}

// Message ordering key is (created_at, id) ascending; ties broken by id so
// pagination is deterministic. A deleted message keeps its position and is
// marked rather than removed.
type Message struct {
	ID               string            `bson:"_id" json:"id" validate:"required"`
	CID              CID               `bson:"cid" json:"cid" validate:"required"`
	ParentID         string            `bson:"parent_id" json:"parent_id"`
	UserID           string            `bson:"user_id" json:"user_id"`
	Type             MessageType       `bson:"type" json:"type"`
	Text             string            `bson:"text" json:"text"`
	Attachments      []Attachment      `bson:"attachments" json:"attachments"`
	Reactions        ReactionSummary   `bson:"reactions" json:"reactions"`
	MentionedUserIDs []string          `bson:"mentioned_user_ids" json:"mentioned_user_ids"`
	LocalState       LocalMessageState `bson:"local_state" json:"local_state"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `bson:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time        `bson:"deleted_at" json:"deleted_at"`
}

func (Message) CollectionName() string { return "messages" }

func (m Message) Key() string { return m.ID }

func (m Message) IsDeleted() bool { return m.DeletedAt != nil }

// IsReply reports whether the message is a thread reply. Replies do not
// participate in top-level unread accounting.
func (m Message) IsReply() bool { return m.ParentID != "" }

func (m Message) Mentions(userID string) bool {
	for _, id := range m.MentionedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Before orders messages by (created_at, id) ascending.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
