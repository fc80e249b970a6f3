package notif

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collabhub/internal/bus"
	"collabhub/internal/common"
	"collabhub/internal/config"
	"collabhub/internal/queue"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queuedMsg is a delivered create_notification envelope.
type queuedMsg struct {
	jetstream.Msg
	data  []byte
	acked bool
}

func (m *queuedMsg) Data() []byte    { return m.data }
func (m *queuedMsg) Subject() string { return "notifications.create_notification" }
func (m *queuedMsg) Ack() error      { m.acked = true; return nil }

func TestQueuedNotification_ReachesSocket(t *testing.T) {
	f := newFixture(t)
	in := f.projectInput()

	broker := bus.NewBroker(8)
	defer broker.Shutdown()
	cfg := &config.Config{Notification: config.NotificationConfig{
		AckMode:       config.AckAlways,
		TTL:           48 * time.Hour,
		VisibleWindow: 24 * time.Hour,
	}}
	users := userTable{f.sender.ID: f.sender, f.alice.ID: f.alice, f.bob.ID: f.bob}
	dispatcher := NewDispatcher(cfg, f.repo, users, f.content, f.presence, broker)

	consumer := queue.NewConsumer(cfg.Notification, nil)
	consumer.Handle(common.EventCreateNotification, dispatcher.HandleCreateEvent)

	h := NewNotificationHandler(dispatcher, &fakeEvents{}, broker)
	srv := httptest.NewServer(newTestRouter(h, &common.Caller{UserID: f.alice.ID}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount(common.TopicNotification) == 1
	}, 2*time.Second, 10*time.Millisecond)

	data, err := json.Marshal(map[string]interface{}{
		"senderId":     f.sender.ID.Hex(),
		"recipientIds": []string{f.alice.ID.Hex()},
		"type":         "project",
		"content":      map[string]string{"_id": in.ContentID.Hex()},
		"contentType":  "Project",
		"message":      "Project created",
	})
	require.NoError(t, err)
	body, err := json.Marshal(queue.Envelope{Pattern: common.EventCreateNotification, Data: data})
	require.NoError(t, err)

	msg := &queuedMsg{data: body}
	consumer.Process(context.Background(), msg)
	assert.True(t, msg.acked)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Topic string `json:"topic"`
		Data  struct {
			Message    string   `json:"message"`
			Recipients []string `json:"recipients"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, common.TopicNotification, frame.Topic)
	assert.Equal(t, "Project created", frame.Data.Message)
	assert.Equal(t, []string{f.alice.ID.Hex()}, frame.Data.Recipients)
}
