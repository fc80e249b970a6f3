package common

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Publisher is the write side of the Live Delivery Bus.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// PresenceReader is the narrow presence query other components depend on.
type PresenceReader interface {
	StatusOf(ctx context.Context, userID primitive.ObjectID) UserStatus
}
