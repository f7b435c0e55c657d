package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageKind discriminates the payload a ChatMessage carries.
type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
	KindJoin  MessageKind = "JOIN"
	KindLeave MessageKind = "LEAVE"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindJoin, KindLeave:
		return true
	}
	return false
}

// ChatMessage is one message in a room, stored in MongoDB.
// Exactly one of Content and ImageURL is populated: Content for TEXT,
// JOIN and LEAVE, ImageURL for IMAGE. Use the constructors below rather
// than building the struct by hand so the invariant holds.
type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID     int                `bson:"room_id" json:"room_id"`
	SenderID   int                `bson:"sender_id" json:"sender_id"`
	SenderName string             `bson:"sender_name" json:"sender_name"`
	Kind       MessageKind        `bson:"kind" json:"kind"`
	Content    string             `bson:"content,omitempty" json:"content,omitempty"`
	ImageURL   string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

// NewTextMessage builds a TEXT message. The timestamp is stamped later by
// the ingestion gateway.
func NewTextMessage(roomID, senderID int, senderName, text string) ChatMessage {
	return ChatMessage{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       KindText,
		Content:    text,
	}
}

// NewImageMessage builds an IMAGE message pointing at an uploaded blob.
func NewImageMessage(roomID, senderID int, senderName, imageURL string) ChatMessage {
	return ChatMessage{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       KindImage,
		ImageURL:   imageURL,
	}
}

// NewJoinMessage builds the synthesized room-entry announcement.
func NewJoinMessage(roomID, userID int, userName string) ChatMessage {
	return ChatMessage{
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: userName,
		Kind:       KindJoin,
		Content:    userName + "님이 채팅방에 입장했습니다.",
	}
}

// NewLeaveMessage builds the synthesized room-exit announcement.
func NewLeaveMessage(roomID, userID int, userName string) ChatMessage {
	return ChatMessage{
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: userName,
		Kind:       KindLeave,
		Content:    userName + "님이 채팅방을 나갔습니다.",
	}
}

// Validate checks the kind/payload invariant.
func (m ChatMessage) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	switch m.Kind {
	case KindImage:
		if m.ImageURL == "" || m.Content != "" {
			return fmt.Errorf("image message must carry image_url only")
		}
	default:
		if m.Content == "" || m.ImageURL != "" {
			return fmt.Errorf("%s message must carry content only", m.Kind)
		}
	}
	return nil
}

// NotificationBody renders the push-notification body for this message.
func (m ChatMessage) NotificationBody() string {
	switch m.Kind {
	case KindText:
		return m.SenderName + ": " + m.Content
	case KindImage:
		return m.SenderName + "님이 사진을 보냈습니다."
	default:
		// JOIN/LEAVE reuse the synthesized body.
		return m.Content
	}
}

// RoomEvent is the envelope broadcast to websocket clients.
type RoomEvent struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}
