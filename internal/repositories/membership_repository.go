package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"tripchat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// MembershipRepository resolves rooms and their participant sets. The
// membership data is owned by the surrounding application; this service
// only reads it to compute the fan-out and notification audience.
type MembershipRepository interface {
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	RoomExists(ctx context.Context, roomID int) (bool, error)
	MembersOf(ctx context.Context, roomID int) ([]models.RoomMember, error)
	MemberName(ctx context.Context, roomID, userID int) (string, error)
	RoomIDForPost(ctx context.Context, postID int) (int, error)
}

// MembershipRepo is a sqlx-backed read-only repository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// GetRoom retrieves a room by id.
func (r *MembershipRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, post_id, title, created_at FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// RoomExists reports whether a room id resolves to a room.
func (r *MembershipRepo) RoomExists(ctx context.Context, roomID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM chat_rooms WHERE id=$1)`, roomID)
	return exists, err
}

// MembersOf returns the current participant set of a room.
func (r *MembershipRepo) MembersOf(ctx context.Context, roomID int) ([]models.RoomMember, error) {
	var members []models.RoomMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT room_id, user_id, user_name, role FROM chat_members WHERE room_id=$1 ORDER BY user_id ASC`,
		roomID)
	return members, err
}

// MemberName returns the display name of one participant.
func (r *MembershipRepo) MemberName(ctx context.Context, roomID, userID int) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name,
		`SELECT user_name FROM chat_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRoomNotFound
	}
	return name, err
}

// RoomIDForPost resolves the room attached to a group-trip post. Used by
// the leave flow, which is keyed by post on the application side.
func (r *MembershipRepo) RoomIDForPost(ctx context.Context, postID int) (int, error) {
	var roomID int
	err := r.db.GetContext(ctx, &roomID,
		`SELECT id FROM chat_rooms WHERE post_id=$1`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRoomNotFound
	}
	return roomID, err
}
