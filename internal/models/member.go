package models

import "time"

// InviteState tracks the lifecycle of a channel invite.
type InviteState string

const (
	InviteNone     InviteState = ""
	InvitePending  InviteState = "pending"
	InviteAccepted InviteState = "accepted"
	InviteRejected InviteState = "rejected"
)

// Member is a (channel, user) pair with a channel-scoped role. Uniquely
// identified by (cid, user_id); identity is by user id, never by mutable
// fields.
type Member struct {
	CID              CID         `bson:"cid" json:"cid" validate:"required"`
	UserID           string      `bson:"user_id" json:"user_id" validate:"required"`
	Role             string      `bson:"role" json:"role"`
	InviteState      InviteState `bson:"invite_state" json:"invite_state"`
	InvitedAt        *time.Time  `bson:"invited_at" json:"invited_at"`
	InviteAnsweredAt *time.Time  `bson:"invite_answered_at" json:"invite_answered_at"`
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `bson:"updated_at" json:"updated_at"`
}

func (Member) CollectionName() string { return "members" }

func (m Member) Key() string { return string(m.CID) + "/" + m.UserID }
