package dbmongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationTTLIndex = "createdAt_ttl"

// IndexModels returns the indexes each collection needs, keyed by collection.
// Notification retention is enforced here by a TTL index, not by application code.
func IndexModels(notificationTTL time.Duration) map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		NotificationsCollection: {
			{
				Keys: bson.D{{Key: "createdAt", Value: 1}},
				Options: options.Index().
					SetName(notificationTTLIndex).
					SetExpireAfterSeconds(int32(notificationTTL / time.Second)),
			},
			{Keys: bson.D{{Key: "recipients", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		ChatsCollection: {
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		MessagesCollection: {
			{Keys: bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
}

func EnsureIndexes(ctx context.Context, db *mongo.Database, notificationTTL time.Duration) error {
	for collection, models := range IndexModels(notificationTTL) {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
