package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripchat-service/internal/models"
)

// MessageRepository is the append-only message store.
type MessageRepository interface {
	Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	HistoryByRoom(ctx context.Context, roomID int) ([]models.ChatMessage, error)
	LatestByRooms(ctx context.Context, roomIDs []int) (map[int]models.ChatMessage, error)
}

// MessageRepo is a MongoDB-backed repository over the messages collection.
type MessageRepo struct {
	coll *mongo.Collection
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection("messages")}
}

// Append inserts a message and returns it with the store-assigned id.
// Messages are immutable once appended.
func (r *MessageRepo) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if err := msg.Validate(); err != nil {
		return models.ChatMessage{}, err
	}

	res, err := r.coll.InsertOne(ctx, msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.ChatMessage{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	msg.ID = oid
	return msg, nil
}

// HistoryByRoom returns all messages for a room in ascending timestamp order.
func (r *MessageRepo) HistoryByRoom(ctx context.Context, roomID int) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []models.ChatMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

// LatestByRooms returns the most recent message per room for chat-list previews.
func (r *MessageRepo) LatestByRooms(ctx context.Context, roomIDs []int) (map[int]models.ChatMessage, error) {
	if len(roomIDs) == 0 {
		return map[int]models.ChatMessage{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"room_id": bson.M{"$in": roomIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$room_id",
			"latest": bson.M{"$first": "$$ROOT"},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate previews: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		RoomID int                `bson:"_id"`
		Latest models.ChatMessage `bson:"latest"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode previews: %w", err)
	}

	previews := make(map[int]models.ChatMessage, len(rows))
	for _, row := range rows {
		previews[row.RoomID] = row.Latest
	}
	return previews, nil
}
