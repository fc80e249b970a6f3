package common

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounter map[string]int

func (c staticCounter) SubscriberCount(topic string) int { return c[topic] }

func TestHealthHandler(t *testing.T) {
	counter := staticCounter{TopicChatMessage: 3, TopicNotification: 1}
	ok := func(context.Context) error { return nil }

	t.Run("reports subscribers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(ok, counter, TopicChatMessage, TopicNotification, TopicUserStatus).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]int{
			TopicChatMessage:  3,
			TopicNotification: 1,
			TopicUserStatus:   0,
		}, resp.Subscribers)
	})

	t.Run("ping failure", func(t *testing.T) {
		down := func(context.Context) error { return errors.New("server selection timeout") }
		rec := httptest.NewRecorder()
		HealthHandler(down, counter, TopicChatMessage).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "subscribers")
	})
}
