package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tripchat-service/internal/blob"
	"tripchat-service/internal/broker"
	"tripchat-service/internal/models"
	"tripchat-service/internal/observability"
	"tripchat-service/internal/repositories"
)

// Publish retry policy. A stuck broker must not block submissions for
// other rooms, so each attempt runs under its own timeout and the whole
// budget is bounded.
const (
	publishAttempts       = 3
	publishAttemptTimeout = 5 * time.Second
	publishRetryPause     = 500 * time.Millisecond
)

// SubmitRequest carries one inbound client message.
type SubmitRequest struct {
	RoomID           int
	SenderID         int
	SenderName       string
	Kind             models.MessageKind
	Text             string
	Image            []byte
	ImageContentType string
}

// Gateway accepts inbound messages, stamps them with server time,
// persists them and publishes them on the room's topic. Persistence
// happens before publish: a publish failure degrades timeliness, never
// durability.
type Gateway struct {
	members   repositories.MembershipRepository
	store     repositories.MessageRepository
	publisher broker.Publisher
	blobs     blob.Store
	now       func() time.Time
}

// NewGateway constructs a Gateway.
func NewGateway(members repositories.MembershipRepository, store repositories.MessageRepository, publisher broker.Publisher, blobs blob.Store) *Gateway {
	return &Gateway{
		members:   members,
		store:     store,
		publisher: publisher,
		blobs:     blobs,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates, stores and publishes one message. On success the
// persisted message (with its store-assigned id) is returned. A
// *DeliveryDegradedError is returned alongside the persisted message when
// the broker publish exhausted its retries.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (models.ChatMessage, error) {
	exists, err := g.members.RoomExists(ctx, req.RoomID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("resolve room %d: %w", req.RoomID, err)
	}
	if !exists {
		return models.ChatMessage{}, ErrRoomNotFound
	}

	var msg models.ChatMessage
	switch req.Kind {
	case models.KindImage:
		url, err := g.blobs.Upload(ctx, bytes.NewReader(req.Image), int64(len(req.Image)), req.ImageContentType)
		if err != nil {
			return models.ChatMessage{}, &AssetUploadError{Err: err}
		}
		msg = models.NewImageMessage(req.RoomID, req.SenderID, req.SenderName, url)
	case models.KindText:
		msg = models.NewTextMessage(req.RoomID, req.SenderID, req.SenderName, req.Text)
	default:
		return models.ChatMessage{}, fmt.Errorf("kind %q cannot be submitted by clients", req.Kind)
	}

	return g.storeAndPublish(ctx, msg)
}

// SendJoinMessage announces a user entering a room. Join messages take
// the same store-and-publish path as user messages so membership
// transitions land in history at their correct position.
func (g *Gateway) SendJoinMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error) {
	name, err := g.memberName(ctx, roomID, userID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return g.storeAndPublish(ctx, models.NewJoinMessage(roomID, userID, name))
}

// SendLeaveMessage announces a user leaving a room. The caller announces
// before the membership row is removed, so the name still resolves.
func (g *Gateway) SendLeaveMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error) {
	name, err := g.memberName(ctx, roomID, userID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return g.storeAndPublish(ctx, models.NewLeaveMessage(roomID, userID, name))
}

func (g *Gateway) memberName(ctx context.Context, roomID, userID int) (string, error) {
	name, err := g.members.MemberName(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return "", ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve member %d in room %d: %w", userID, roomID, err)
	}
	return name, nil
}

func (g *Gateway) storeAndPublish(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	msg.Timestamp = g.now()

	stored, err := g.store.Append(ctx, msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("store message: %w", err)
	}
	observability.IncMessageIngested(string(stored.Kind))

	if err := g.publishWithRetry(ctx, stored); err != nil {
		observability.IncPublishFailure()
		log.Printf("publish exhausted for message %s room %d: %v", stored.ID.Hex(), stored.RoomID, err)
		return stored, &DeliveryDegradedError{Message: stored, Err: err}
	}
	return stored, nil
}

func (g *Gateway) publishWithRetry(ctx context.Context, msg models.ChatMessage) error {
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, publishAttemptTimeout)
		lastErr = g.publisher.Publish(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		observability.IncPublishRetry()
		if attempt < publishAttempts {
			select {
			case <-time.After(publishRetryPause):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return lastErr
}
