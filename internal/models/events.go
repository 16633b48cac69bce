package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMessageNew          EventType = "message.new"
	EventMessageUpdated      EventType = "message.updated"
	EventMessageDeleted      EventType = "message.deleted"
	EventMessageRead         EventType = "message.read"
	EventReactionNew         EventType = "reaction.new"
	EventReactionDeleted     EventType = "reaction.deleted"
	EventMemberAdded         EventType = "member.added"
	EventMemberRemoved       EventType = "member.removed"
	EventUserPresenceChanged EventType = "user.presence.changed"
	EventUserWatchingStart   EventType = "user.watching.start"
	EventUserWatchingStop    EventType = "user.watching.stop"
	EventUserBanned          EventType = "user.banned"
	EventChannelUpdated      EventType = "channel.updated"
	EventChannelDeleted      EventType = "channel.deleted"
	EventChannelTruncated    EventType = "channel.truncated"
)

func (t EventType) Valid() bool {
	switch t {
	case EventMessageNew, EventMessageUpdated, EventMessageDeleted,
		EventMessageRead, EventReactionNew, EventReactionDeleted,
		EventMemberAdded, EventMemberRemoved, EventUserPresenceChanged,
		EventUserWatchingStart, EventUserWatchingStop, EventUserBanned,
		EventChannelUpdated, EventChannelDeleted, EventChannelTruncated:
		return true
	}
	return false
}

// Event is the envelope every push event arrives in. Only the fields
// relevant to the event type are set.
type Event struct {
	Type         EventType       `json:"type" validate:"required"`
	CID          CID             `json:"cid"`
	Channel      *ChannelPayload `json:"channel,omitempty"`
	Message      *MessagePayload `json:"message,omitempty"`
	Member       *MemberPayload  `json:"member,omitempty"`
	User         *UserPayload    `json:"user,omitempty"`
	Reaction     *Reaction       `json:"reaction,omitempty"`
	WatcherCount int             `json:"watcher_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UserPayload is the wire shape of a user inside responses and events.
type UserPayload struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name"`
	ImageURL     string          `json:"image"`
	Role         string          `json:"role"`
	Online       bool            `json:"online"`
	Banned       bool            `json:"banned"`
	Teams        []string        `json:"teams"`
	ExtraData    json.RawMessage `json:"extra_data"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastActiveAt *time.Time      `json:"last_active_at"`
	DeletedAt    *time.Time      `json:"deleted_at"`
}

type MemberPayload struct {
	User             *UserPayload `json:"user"`
	UserID           string       `json:"user_id"`
	Role             string       `json:"role"`
	InviteState      InviteState  `json:"invite_state"`
	InvitedAt        *time.Time   `json:"invited_at"`
	InviteAnsweredAt *time.Time   `json:"invite_answered_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ReadStatePayload is the server-side unread marker shipped with channel
// snapshots. The mention count is not part of it and is recomputed locally.
type ReadStatePayload struct {
	User           *UserPayload `json:"user"`
	LastReadAt     time.Time    `json:"last_read"`
	UnreadMessages int          `json:"unread_messages"`
}

type ChannelPayload struct {
	CID           string          `json:"cid" validate:"required"`
	Type          string          `json:"type"`
	Config        ChannelConfig   `json:"config"`
	Frozen        bool            `json:"frozen"`
	Cooldown      int             `json:"cooldown"`
	CreatedBy     *UserPayload    `json:"created_by"`
	Members       []MemberPayload `json:"members"`
	MemberCount   int             `json:"member_count"`
	ExtraData     json.RawMessage `json:"extra_data"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at"`
	LastMessageAt *time.Time      `json:"last_message_at"`
}

type MessagePayload struct {
	ID               string           `json:"id" validate:"required"`
	CID              string           `json:"cid"`
	ParentID         string           `json:"parent_id"`
	User             *UserPayload     `json:"user"`
	Type             MessageType      `json:"type"`
	Text             string           `json:"text"`
	Attachments      []Attachment     `json:"attachments"`
	LatestReactions  []Reaction       `json:"latest_reactions"`
	ReactionCounts   map[string]int   `json:"reaction_counts"`
	ReactionScores   map[string]int   `json:"reaction_scores"`
	MentionedUsers   []UserPayload    `json:"mentioned_users"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        *time.Time       `json:"deleted_at"`
}

// ChannelResponse is what a channel query returns: the channel snapshot
// plus the message page, watcher list and read states fetched with it.
type ChannelResponse struct {
	Channel      *ChannelPayload    `json:"channel"`
	Messages     []MessagePayload   `json:"messages"`
	Watchers     []UserPayload      `json:"watchers"`
	WatcherCount int                `json:"watcher_count"`
	Reads        []ReadStatePayload `json:"read"`
}

type ChannelListResponse struct {
	Channels []ChannelResponse `json:"channels"`
}

type MessageResponse struct {
	Message *MessagePayload `json:"message"`
}
