package notif

import (
	"context"

	"collabhub/internal/common"
)

// Observer is told about every notification after it has been persisted.
type Observer interface {
	Update(ctx context.Context, n NotificationView) error
	Name() string
}

// liveObserver pushes notifications onto the Live Delivery Bus. Subscribers
// filter by recipient with their own predicate.
type liveObserver struct {
	bus common.Publisher
}

func NewLiveObserver(bus common.Publisher) Observer {
	return &liveObserver{bus: bus}
}

func (o *liveObserver) Update(ctx context.Context, n NotificationView) error {
	o.bus.Publish(common.TopicNotification, n)
	return nil
}

func (o *liveObserver) Name() string {
	return "live"
}

// RecipientPredicate matches notifications addressed to the subscribing caller.
func RecipientPredicate(ctx context.Context, payload interface{}) bool {
	caller, ok := common.CallerFrom(ctx)
	if !ok {
		return false
	}
	n, ok := payload.(NotificationView)
	if !ok {
		return false
	}
	return common.ContainsID(n.Recipients, caller.UserID)
}
