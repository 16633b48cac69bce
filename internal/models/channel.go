package models

import "time"

// ChannelConfig carries the feature flags a channel type enables.
type ChannelConfig struct {
	ReactionsEnabled     bool   `bson:"reactions_enabled" json:"reactions_enabled"`
	TypingEventsEnabled  bool   `bson:"typing_events_enabled" json:"typing_events_enabled"`
	ReadEventsEnabled    bool   `bson:"read_events_enabled" json:"read_events_enabled"`
	UploadsEnabled       bool   `bson:"uploads_enabled" json:"uploads_enabled"`
	RepliesEnabled       bool   `bson:"replies_enabled" json:"replies_enabled"`
	SearchEnabled        bool   `bson:"search_enabled" json:"search_enabled"`
	MutesEnabled         bool   `bson:"mutes_enabled" json:"mutes_enabled"`
	URLEnrichmentEnabled bool   `bson:"url_enrichment_enabled" json:"url_enrichment_enabled"`
	MessageRetention     string `bson:"message_retention" json:"message_retention"`
	MaxMessageLength     int    `bson:"max_message_length" json:"max_message_length"`
	Commands             []string `bson:"commands" json:"commands"`
}

// UnreadCount holds the locally derived unread counters for the current
// user. MentionedMessages never exceeds Messages.
type UnreadCount struct {
	Messages          int `bson:"messages" json:"messages"`
	MentionedMessages int `bson:"mentioned_messages" json:"mentioned_messages"`
}

// MessageRead is the unread marker separating read from unread messages for
// a user in a channel.
type MessageRead struct {
	UserID            string    `bson:"user_id" json:"user_id"`
	LastReadAt        time.Time `bson:"last_read_at" json:"last_read_at"`
	LastReadMessageID string    `bson:"last_read_message_id" json:"last_read_message_id"`
}

// Channel is the locally cached channel state. Membership and watcher
// relationships are key lists into the user/member tables, not pointers.
// UnreadCount and WatcherCount are derived locally and are never overwritten
// by a generic channel payload.
type Channel struct {
	CID           CID            `bson:"_id" json:"cid" validate:"required"`
	Type          string         `bson:"type" json:"type"`
	Name          string         `bson:"name" json:"name"`
	ImageURL      string         `bson:"image_url" json:"image_url"`
	Config        ChannelConfig  `bson:"config" json:"config"`
	Frozen        bool           `bson:"frozen" json:"frozen"`
	Cooldown      int            `bson:"cooldown" json:"cooldown"`
	CreatedByID   string         `bson:"created_by_id" json:"created_by_id"`
	ExtraData     map[string]any `bson:"extra_data" json:"extra_data"`
	MemberIDs     []string       `bson:"member_ids" json:"member_ids"`
	WatcherIDs    []string       `bson:"watcher_ids" json:"watcher_ids"`
	BannedUserIDs []string       `bson:"banned_user_ids" json:"banned_user_ids"`
	MemberCount   int            `bson:"member_count" json:"member_count"`
	WatcherCount  int            `bson:"watcher_count" json:"watcher_count"`
	Unread        UnreadCount    `bson:"unread" json:"unread"`
	LastRead      *MessageRead   `bson:"last_read" json:"last_read"`
	CreatedAt     time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time     `bson:"deleted_at" json:"deleted_at"`
	LastMessageAt *time.Time     `bson:"last_message_at" json:"last_message_at"`
}

func (Channel) CollectionName() string { return "channels" }

func (c Channel) Key() string { return string(c.CID) }

func (c Channel) IsDeleted() bool { return c.DeletedAt != nil }

// LastActivityAt is the sort key for the default channel ordering:
// last message time when present, creation time otherwise.
func (c Channel) LastActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (c Channel) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
