package notif

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

var ErrNotFound = errors.New("not found")

type NotificationRepository interface {
	Create(ctx context.Context, n *dbmongo.Notification) error
	// FindForUser lists notifications addressed to userID created after
	// createdAfter that are unread or were created at or after readVisibleSince.
	FindForUser(ctx context.Context, userID primitive.ObjectID, createdAfter, readVisibleSince time.Time) ([]dbmongo.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID primitive.ObjectID) error
}

type notificationRepo struct {
	notifications *mongo.Collection
}

func NewNotificationRepository(mc *dbmongo.MongoClient) NotificationRepository {
	return &notificationRepo{notifications: mc.Collection(dbmongo.NotificationsCollection)}
}

func (r *notificationRepo) Create(ctx context.Context, n *dbmongo.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := r.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepo) FindForUser(ctx context.Context, userID primitive.ObjectID, createdAfter, readVisibleSince time.Time) ([]dbmongo.Notification, error) {
	filter := bson.M{
		"recipients": userID,
		"createdAt":  bson.M{"$gt": createdAfter},
		"$or": bson.A{
			bson.M{"isRead": false},
			bson.M{"createdAt": bson.M{"$gte": readVisibleSince}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications for %s: %w", userID.Hex(), err)
	}
	out := []dbmongo.Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return out, nil
}

// MarkRead is scoped to recipients so users cannot touch each other's records.
func (r *notificationRepo) MarkRead(ctx context.Context, notificationID, userID primitive.ObjectID) error {
	res, err := r.notifications.UpdateOne(ctx,
		bson.M{"_id": notificationID, "recipients": userID},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", notificationID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type contentRepo struct {
	tasks     *mongo.Collection
	projects  *mongo.Collection
	companies *mongo.Collection
	users     *mongo.Collection
}

func NewContentRepository(mc *dbmongo.MongoClient) ContentStore {
	return &contentRepo{
		tasks:     mc.Collection(dbmongo.TasksCollection),
		projects:  mc.Collection(dbmongo.ProjectsCollection),
		companies: mc.Collection(dbmongo.CompaniesCollection),
		users:     mc.Collection(dbmongo.UsersCollection),
	}
}

func findOne(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, out interface{}, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", coll.Name(), id.Hex(), err)
	}
	return nil
}

func (r *contentRepo) FindTask(ctx context.Context, id primitive.ObjectID) (*dbmongo.Task, error) {
	var t dbmongo.Task
	if err := findOne(ctx, r.tasks, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *contentRepo) FindProject(ctx context.Context, id primitive.ObjectID) (*dbmongo.Project, error) {
	var p dbmongo.Project
	if err := findOne(ctx, r.projects, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *contentRepo) FindCompany(ctx context.Context, id primitive.ObjectID) (*dbmongo.Company, error) {
	var c dbmongo.Company
	if err := findOne(ctx, r.companies, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepo) FindUser(ctx context.Context, id primitive.ObjectID) (*dbmongo.PublicUser, error) {
	var u dbmongo.PublicUser
	opts := options.FindOne().SetProjection(bson.M{
		"_id": 1, "userName": 1, "firstName": 1, "lastName": 1, "profilePhoto": 1, "status": 1,
	})
	if err := findOne(ctx, r.users, id, &u, opts); err != nil {
		return nil, err
	}
	return &u, nil
}
