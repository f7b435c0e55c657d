package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tripchat-service/internal/models"
	"tripchat-service/internal/notify"
	"tripchat-service/internal/observability"
	"tripchat-service/internal/repositories"
)

// LiveBroadcaster delivers a message to all sockets subscribed to its room.
type LiveBroadcaster interface {
	BroadcastRoomMessage(msg models.ChatMessage)
	ViewerIDs(roomID int) map[int]bool
}

// UserNotifier pushes a notification to all of one user's devices.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int, title, body string) (notify.DeliveryReport, error)
}

// Dispatcher consumes room topics and fans each message out: first to the
// live viewers of the room, then as push notifications to the remaining
// participants. Duplicate delivery from the broker repeats both steps;
// message identity and content are never altered.
type Dispatcher struct {
	hub      LiveBroadcaster
	members  repositories.MembershipRepository
	notifier UserNotifier
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(hub LiveBroadcaster, members repositories.MembershipRepository, notifier UserNotifier) *Dispatcher {
	return &Dispatcher{hub: hub, members: members, notifier: notifier}
}

// HandleMessage processes one consumed broker message. A malformed value
// is dropped with a nil return: redelivering it cannot succeed and must
// not stall the partition.
func (d *Dispatcher) HandleMessage(ctx context.Context, key, value []byte) error {
	ctx, span := otel.Tracer("tripchat-service/fanout").Start(ctx, "fanout.handle",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var msg models.ChatMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		log.Printf("dropping malformed message (key=%s): %v", key, err)
		observability.IncPoisonMessage()
		return nil
	}
	if err := msg.Validate(); err != nil {
		log.Printf("dropping invalid message %s: %v", msg.ID.Hex(), err)
		observability.IncPoisonMessage()
		return nil
	}
	span.SetAttributes(
		attribute.Int("room.id", msg.RoomID),
		attribute.String("message.kind", string(msg.Kind)),
	)

	d.hub.BroadcastRoomMessage(msg)

	if err := d.notifyOffline(ctx, msg); err != nil {
		// Membership lookup failed; worth a redelivery since the message
		// itself is fine.
		return err
	}
	return nil
}

// notifyOffline resolves the room's membership, excludes the sender and
// the participants actively viewing the room, and notifies the rest.
// Per-recipient failures are isolated: one failed push never blocks the
// others and never fails the dispatch.
func (d *Dispatcher) notifyOffline(ctx context.Context, msg models.ChatMessage) error {
	members, err := d.members.MembersOf(ctx, msg.RoomID)
	if err != nil {
		return fmt.Errorf("resolve members of room %d: %w", msg.RoomID, err)
	}

	room, err := d.members.GetRoom(ctx, msg.RoomID)
	if err != nil {
		return fmt.Errorf("resolve room %d: %w", msg.RoomID, err)
	}

	viewers := d.hub.ViewerIDs(msg.RoomID)
	body := msg.NotificationBody()

	for _, member := range members {
		if member.UserID == msg.SenderID {
			continue
		}
		if viewers[member.UserID] {
			continue
		}
		if _, err := d.notifier.NotifyUser(ctx, member.UserID, room.Title, body); err != nil {
			log.Printf("notify user %d for room %d failed: %v", member.UserID, msg.RoomID, err)
		}
	}
	return nil
}
