package models

import "time"

type User struct {
	ID           string         `bson:"_id" json:"id" validate:"required"`
	Name         string         `bson:"name" json:"name"`
	ImageURL     string         `bson:"image_url" json:"image_url"`
	Role         string         `bson:"role" json:"role"`
	Online       bool           `bson:"online" json:"online"`
	Banned       bool           `bson:"banned" json:"banned"`
	Teams        []string       `bson:"teams" json:"teams"`
	ExtraData    map[string]any `bson:"extra_data" json:"extra_data"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at" json:"updated_at"`
	LastActiveAt *time.Time     `bson:"last_active_at" json:"last_active_at"`
	DeletedAt    *time.Time     `bson:"deleted_at" json:"deleted_at"`
}

func (User) CollectionName() string { return "users" }

func (u User) Key() string { return u.ID }
