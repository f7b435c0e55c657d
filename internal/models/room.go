package models

import "time"

// Room is a chat room attached to one group-trip post.
type Room struct {
	ID        int       `db:"id" json:"id"`
	PostID    int       `db:"post_id" json:"post_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomMember is one participant of a room. Membership is owned by the
// surrounding application; this service only reads it.
type RoomMember struct {
	RoomID   int    `db:"room_id" json:"room_id"`
	UserID   int    `db:"user_id" json:"user_id"`
	UserName string `db:"user_name" json:"user_name"`
	Role     string `db:"role" json:"role"`
}

// DeviceToken is one (user, push-token) pair. A user may hold many tokens;
// the pair itself is unique.
type DeviceToken struct {
	UserID    int       `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"token"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
