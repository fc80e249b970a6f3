package common

import (
	"context"
	"net/http"
)

// SubscriberCounter reports how many live subscriptions a topic has.
type SubscriberCounter interface {
	SubscriberCount(topic string) int
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Subscribers map[string]int `json:"subscribers,omitempty"`
}

// HealthHandler answers 503 when ping fails and otherwise reports the live
// subscriber count of every topic.
func HealthHandler(ping func(ctx context.Context) error, counter SubscriberCounter, topics ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "mongo unavailable"})
			return
		}
		resp := HealthResponse{Status: "ok", Subscribers: make(map[string]int, len(topics))}
		for _, topic := range topics {
			resp.Subscribers[topic] = counter.SubscriberCount(topic)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
