package user

import (
	"context"
	"errors"
	"fmt"

	"collabhub/internal/common"
	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository is the read side of the user directory owned by the identity
// collaborator, plus the status field the session layer writes through presence.
type UserRepository interface {
	FindByID(ctx context.Context, userID primitive.ObjectID) (*dbmongo.User, error)
	FindPublicByIDs(ctx context.Context, userIDs []primitive.ObjectID) ([]dbmongo.PublicUser, error)
	CountExisting(ctx context.Context, userIDs []primitive.ObjectID) (int64, error)
	StatusOf(ctx context.Context, userID primitive.ObjectID) (common.UserStatus, error)
	SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) (bool, error)
}

// ErrUserNotFound is returned when no live user has the requested id.
var ErrUserNotFound = errors.New("user not found")

var publicProjection = bson.M{
	"_id":          1,
	"userName":     1,
	"firstName":    1,
	"lastName":     1,
	"profilePhoto": 1,
	"status":       1,
}

type userRepository struct {
	users *mongo.Collection
}

func NewUserRepository(mc *dbmongo.MongoClient) UserRepository {
	return &userRepository{users: mc.Collection(dbmongo.UsersCollection)}
}

func liveUser(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}
}

func (r *userRepository) FindByID(ctx context.Context, userID primitive.ObjectID) (*dbmongo.User, error) {
	var u dbmongo.User
	err := r.users.FindOne(ctx, liveUser(userID)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", userID.Hex(), err)
	}
	return &u, nil
}

func (r *userRepository) FindPublicByIDs(ctx context.Context, userIDs []primitive.ObjectID) ([]dbmongo.PublicUser, error) {
	if len(userIDs) == 0 {
		return []dbmongo.PublicUser{}, nil
	}
	filter := bson.M{"_id": bson.M{"$in": userIDs}, "isDeleted": bson.M{"$ne": true}}
	cursor, err := r.users.Find(ctx, filter, options.Find().SetProjection(publicProjection))
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	users := []dbmongo.PublicUser{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *userRepository) CountExisting(ctx context.Context, userIDs []primitive.ObjectID) (int64, error) {
	filter := bson.M{"_id": bson.M{"$in": userIDs}, "isDeleted": bson.M{"$ne": true}}
	count, err := r.users.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *userRepository) StatusOf(ctx context.Context, userID primitive.ObjectID) (common.UserStatus, error) {
	var doc struct {
		Status common.UserStatus `bson:"status"`
	}
	opts := options.FindOne().SetProjection(bson.M{"status": 1})
	err := r.users.FindOne(ctx, liveUser(userID), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return common.StatusUnknown, ErrUserNotFound
	}
	if err != nil {
		return common.StatusUnknown, fmt.Errorf("failed to read status of %s: %w", userID.Hex(), err)
	}
	if doc.Status == "" {
		return common.StatusOffline, nil
	}
	return doc.Status, nil
}

// SetStatus writes status and reports whether it differed from the stored value.
func (r *userRepository) SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) (bool, error) {
	filter := liveUser(userID)
	filter["status"] = bson.M{"$ne": status}
	res, err := r.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return false, fmt.Errorf("failed to set status of %s: %w", userID.Hex(), err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	count, err := r.users.CountDocuments(ctx, liveUser(userID))
	if err != nil {
		return false, fmt.Errorf("failed to find user %s: %w", userID.Hex(), err)
	}
	if count == 0 {
		return false, ErrUserNotFound
	}
	return false, nil
}
