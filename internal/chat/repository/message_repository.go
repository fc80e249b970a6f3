package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *dbmongo.Message) error
	Delete(ctx context.Context, messageID primitive.ObjectID) error
	FindByID(ctx context.Context, messageID primitive.ObjectID) (*dbmongo.Message, error)
	ListByChat(ctx context.Context, chatID primitive.ObjectID, skip, limit int64) ([]dbmongo.Message, error)
	CountByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, userID primitive.ObjectID, messageIDs []primitive.ObjectID) (int64, error)
	MarkChatRead(ctx context.Context, chatID, userID primitive.ObjectID) (int64, error)
	SoftDelete(ctx context.Context, messageID primitive.ObjectID, at time.Time) error
}

type messageRepo struct {
	messages *mongo.Collection
}

func NewMessageRepository(mc *dbmongo.MongoClient) MessageRepository {
	return &messageRepo{messages: mc.Collection(dbmongo.MessagesCollection)}
}

func visibleInChat(chatID primitive.ObjectID) bson.M {
	return bson.M{"chat": chatID, "isDeleted": bson.M{"$ne": true}}
}

func (r *messageRepo) Create(ctx context.Context, msg *dbmongo.Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepo) Delete(ctx context.Context, messageID primitive.ObjectID) error {
	if _, err := r.messages.DeleteOne(ctx, bson.M{"_id": messageID}); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID.Hex(), err)
	}
	return nil
}

func (r *messageRepo) FindByID(ctx context.Context, messageID primitive.ObjectID) (*dbmongo.Message, error) {
	var msg dbmongo.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": messageID, "isDeleted": bson.M{"$ne": true}}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message %s: %w", messageID.Hex(), err)
	}
	return &msg, nil
}

// ListByChat returns newest first.
func (r *messageRepo) ListByChat(ctx context.Context, chatID primitive.ObjectID, skip, limit int64) ([]dbmongo.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.messages.Find(ctx, visibleInChat(chatID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of chat %s: %w", chatID.Hex(), err)
	}
	messages := []dbmongo.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepo) CountByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error) {
	count, err := r.messages.CountDocuments(ctx, visibleInChat(chatID))
	if err != nil {
		return 0, fmt.Errorf("failed to count messages of chat %s: %w", chatID.Hex(), err)
	}
	return count, nil
}

// MarkRead adds userID to readBy where missing and returns how many messages changed.
func (r *messageRepo) MarkRead(ctx context.Context, userID primitive.ObjectID, messageIDs []primitive.ObjectID) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	filter := bson.M{"_id": bson.M{"$in": messageIDs}, "readBy": bson.M{"$ne": userID}}
	res, err := r.messages.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"readBy": userID}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *messageRepo) MarkChatRead(ctx context.Context, chatID, userID primitive.ObjectID) (int64, error) {
	filter := visibleInChat(chatID)
	filter["readBy"] = bson.M{"$ne": userID}
	res, err := r.messages.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"readBy": userID}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark chat %s read: %w", chatID.Hex(), err)
	}
	return res.ModifiedCount, nil
}

func (r *messageRepo) SoftDelete(ctx context.Context, messageID primitive.ObjectID, at time.Time) error {
	res, err := r.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "isDeleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
