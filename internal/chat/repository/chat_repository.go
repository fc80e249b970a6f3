package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabhub/internal/common"
	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by every repository when the document does not exist.
var ErrNotFound = errors.New("document not found")

type ChatRepository interface {
	FindByID(ctx context.Context, chatID primitive.ObjectID) (*dbmongo.Chat, error)
	FindByParticipantSet(ctx context.Context, participants []primitive.ObjectID) (*dbmongo.Chat, error)
	Create(ctx context.Context, chat *dbmongo.Chat) error
	Reactivate(ctx context.Context, chatID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	SoftDelete(ctx context.Context, chatID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	Delete(ctx context.Context, chatID primitive.ObjectID) error
	AddAdmin(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	RemoveAdmin(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	AddParticipant(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	RemoveParticipant(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error)
	UpdateName(ctx context.Context, chatID primitive.ObjectID, name string, at time.Time) (*dbmongo.Chat, error)
	PushMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time) error
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]ChatSummary, error)
}

// LastMessage is the newest text message of a chat with its sender resolved.
type LastMessage struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Content   string             `bson:"content" json:"content"`
	Sender    dbmongo.PublicUser `bson:"sender" json:"sender"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// ChatSummary is one row of a user's chat list. Participants excludes the user.
type ChatSummary struct {
	ID           primitive.ObjectID   `bson:"_id"`
	Name         string               `bson:"name,omitempty"`
	Participants []dbmongo.PublicUser `bson:"participants"`
	Admins       []primitive.ObjectID `bson:"admins"`
	CreatedBy    primitive.ObjectID   `bson:"createdBy"`
	Metadata     dbmongo.ChatMetadata `bson:"metadata"`
	LastMessage  *LastMessage         `bson:"lastMessage,omitempty"`
}

type chatRepo struct {
	chats *mongo.Collection
}

func NewChatRepository(mc *dbmongo.MongoClient) ChatRepository {
	return &chatRepo{chats: mc.Collection(dbmongo.ChatsCollection)}
}

var returnUpdated = options.FindOneAndUpdate().SetReturnDocument(options.After)

func (r *chatRepo) FindByID(ctx context.Context, chatID primitive.ObjectID) (*dbmongo.Chat, error) {
	var chat dbmongo.Chat
	err := r.chats.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat %s: %w", chatID.Hex(), err)
	}
	return &chat, nil
}

// FindByParticipantSet matches the exact set: every id present and nothing else.
// Active chats win over soft-deleted ones.
func (r *chatRepo) FindByParticipantSet(ctx context.Context, participants []primitive.ObjectID) (*dbmongo.Chat, error) {
	filter := bson.M{
		"participants": bson.M{"$all": participants, "$size": len(participants)},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "isDeleted", Value: 1}, {Key: "metadata.createdAt", Value: 1}})

	var chat dbmongo.Chat
	err := r.chats.FindOne(ctx, filter, opts).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up chat by participants: %w", err)
	}
	return &chat, nil
}

func (r *chatRepo) Create(ctx context.Context, chat *dbmongo.Chat) error {
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}
	if chat.Messages == nil {
		chat.Messages = []primitive.ObjectID{}
	}
	if _, err := r.chats.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *chatRepo) update(ctx context.Context, chatID primitive.ObjectID, update interface{}) (*dbmongo.Chat, error) {
	var chat dbmongo.Chat
	err := r.chats.FindOneAndUpdate(ctx, bson.M{"_id": chatID}, update, returnUpdated).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update chat %s: %w", chatID.Hex(), err)
	}
	return &chat, nil
}

func (r *chatRepo) Reactivate(ctx context.Context, chatID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	return r.update(ctx, chatID, bson.M{
		"$set":   bson.M{"isDeleted": false, "metadata.lastActivity": at},
		"$unset": bson.M{"deletedAt": ""},
	})
}

func (r *chatRepo) SoftDelete(ctx context.Context, chatID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	return r.update(ctx, chatID, bson.M{
		"$set": bson.M{"isDeleted": true, "deletedAt": at},
	})
}

func (r *chatRepo) Delete(ctx context.Context, chatID primitive.ObjectID) error {
	res, err := r.chats.DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", chatID.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *chatRepo) AddAdmin(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	return r.update(ctx, chatID, bson.M{
		"$addToSet": bson.M{"admins": userID},
		"$set":      bson.M{"metadata.lastActivity": at},
	})
}

func (r *chatRepo) RemoveAdmin(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	return r.update(ctx, chatID, bson.M{
		"$pull": bson.M{"admins": userID},
		"$set":  bson.M{"metadata.lastActivity": at},
	})
}

// membershipStats recomputes participantCount and kind from the updated set
// inside the same update so they never drift.
func membershipStats(at time.Time) bson.D {
	size := bson.M{"$size": "$participants"}
	return bson.D{{Key: "$set", Value: bson.M{
		"metadata.participantCount": size,
		"metadata.type": bson.M{"$cond": bson.A{
			bson.M{"$lte": bson.A{size, 2}}, string(common.ChatDirect), string(common.ChatGroup),
		}},
		"metadata.lastActivity": at,
	}}}
}

func (r *chatRepo) AddParticipant(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"participants": bson.M{"$setUnion": bson.A{"$participants", bson.A{userID}}},
		}}},
	}
	pipeline = append(pipeline, membershipStats(at))
	return r.update(ctx, chatID, pipeline)
}

func (r *chatRepo) RemoveParticipant(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (*dbmongo.Chat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"participants": bson.M{"$setDifference": bson.A{"$participants", bson.A{userID}}},
			"admins":       bson.M{"$setDifference": bson.A{"$admins", bson.A{userID}}},
		}}},
	}
	pipeline = append(pipeline, membershipStats(at))
	return r.update(ctx, chatID, pipeline)
}

func (r *chatRepo) UpdateName(ctx context.Context, chatID primitive.ObjectID, name string, at time.Time) (*dbmongo.Chat, error) {
	return r.update(ctx, chatID, bson.M{
		"$set": bson.M{"name": name, "metadata.lastActivity": at},
	})
}

func (r *chatRepo) PushMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time) error {
	res, err := r.chats.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$push": bson.M{"messages": messageID},
		"$set":  bson.M{"metadata.lastActivity": at},
	})
	if err != nil {
		return fmt.Errorf("failed to append message to chat %s: %w", chatID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *chatRepo) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]ChatSummary, error) {
	cursor, err := r.chats.Aggregate(ctx, chatListPipeline(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list chats for %s: %w", userID.Hex(), err)
	}
	summaries := []ChatSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode chat list: %w", err)
	}
	return summaries, nil
}

var publicUserFields = bson.M{
	"_id":          1,
	"userName":     1,
	"firstName":    1,
	"lastName":     1,
	"profilePhoto": 1,
	"status":       1,
}

func chatListPipeline(userID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants": userID, "isDeleted": bson.M{"$ne": true}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": dbmongo.UsersCollection,
			"let":  bson.M{"ids": "$participants"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$in": bson.A{"$_id", "$$ids"}},
					bson.M{"$ne": bson.A{"$_id", userID}},
				}}}},
				bson.M{"$project": publicUserFields},
			},
			"as": "participants",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": dbmongo.MessagesCollection,
			"let":  bson.M{"chatId": "$_id"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					"$expr":     bson.M{"$eq": bson.A{"$chat", "$$chatId"}},
					"type":      common.MessageText,
					"isDeleted": bson.M{"$ne": true},
				}},
				bson.M{"$sort": bson.M{"createdAt": -1}},
				bson.M{"$limit": 1},
				bson.M{"$lookup": bson.M{
					"from": dbmongo.UsersCollection,
					"let":  bson.M{"senderId": "$sender"},
					"pipeline": bson.A{
						bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$_id", "$$senderId"}}}},
						bson.M{"$project": publicUserFields},
					},
					"as": "sender",
				}},
				bson.M{"$unwind": "$sender"},
				bson.M{"$project": bson.M{"_id": 1, "content": 1, "sender": 1, "createdAt": 1}},
			},
			"as": "lastMessage",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$lastMessage", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"messages": 0}}},
		{{Key: "$sort", Value: bson.M{"metadata.lastActivity": -1}}},
	}
}
