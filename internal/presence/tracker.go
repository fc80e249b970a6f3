// Package presence tracks whether users are connected. Status is written only by
// the session layer; everything else reads it through StatusOf.
package presence

import (
	"context"
	"errors"
	"log"

	"collabhub/internal/common"
	"collabhub/internal/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusStore is the slice of the user directory presence needs.
type StatusStore interface {
	StatusOf(ctx context.Context, userID primitive.ObjectID) (common.UserStatus, error)
	SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) (bool, error)
}

// StatusChange is published on the user status topic.
type StatusChange struct {
	UserID primitive.ObjectID `json:"userId"`
	Status common.UserStatus  `json:"status"`
}

type Tracker struct {
	store StatusStore
	bus   common.Publisher
}

func NewTracker(store StatusStore, bus common.Publisher) *Tracker {
	return &Tracker{store: store, bus: bus}
}

// SetStatus records status and publishes a change event when it differs.
func (t *Tracker) SetStatus(ctx context.Context, userID primitive.ObjectID, status common.UserStatus) error {
	if !status.IsValid() {
		return common.BadRequest("invalid status: " + string(status))
	}

	changed, err := t.store.SetStatus(ctx, userID, status)
	if errors.Is(err, user.ErrUserNotFound) {
		return common.NotFound("user not found")
	}
	if err != nil {
		return common.Internal("failed to update status", err)
	}
	if changed {
		t.bus.Publish(common.TopicUserStatus, StatusChange{UserID: userID, Status: status})
	}
	return nil
}

// StatusOf never fails: anything it cannot resolve is Unknown.
func (t *Tracker) StatusOf(ctx context.Context, userID primitive.ObjectID) common.UserStatus {
	status, err := t.store.StatusOf(ctx, userID)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			log.Printf("presence lookup for %s failed: %v", userID.Hex(), err)
		}
		return common.StatusUnknown
	}
	return status
}

// Notifiable drops recipients known to be online. Unknown counts as notifiable.
func Notifiable(ctx context.Context, reader common.PresenceReader, userIDs []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(userIDs))
	for _, id := range userIDs {
		if reader.StatusOf(ctx, id) == common.StatusOnline {
			continue
		}
		out = append(out, id)
	}
	return out
}
