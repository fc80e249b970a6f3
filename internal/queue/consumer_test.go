package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"collabhub/internal/common"
	"collabhub/internal/config"
	"collabhub/internal/dbmysql"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMsg struct {
	jetstream.Msg
	data      []byte
	delivered uint64

	acked    bool
	nakDelay time.Duration
	naked    bool
	termed   bool
	reason   string
}

func (m *fakeMsg) Data() []byte         { return m.data }
func (m *fakeMsg) Subject() string      { return "notifications.create_notification" }
func (m *fakeMsg) Headers() nats.Header { return nats.Header{"Nats-Msg-Id": []string{"msg-1"}} }
func (m *fakeMsg) Ack() error           { m.acked = true; return nil }
func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}
func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.naked = true
	m.nakDelay = d
	return nil
}
func (m *fakeMsg) TermWithReason(reason string) error {
	m.termed = true
	m.reason = reason
	return nil
}

type recordedLetters struct {
	letters []*dbmysql.DeadLetter
}

func (r *recordedLetters) Record(_ context.Context, dl *dbmysql.DeadLetter) error {
	r.letters = append(r.letters, dl)
	return nil
}

const envelope = `{"pattern":"create_notification","data":{"senderId":"abc"}}`

func notifCfg(mode string) config.NotificationConfig {
	return config.NotificationConfig{AckMode: mode, MaxDeliver: 3, RetryDelay: 2 * time.Second}
}

func TestConsumer_Process(t *testing.T) {
	failing := func(context.Context, []byte) error { return errors.New("mongo down") }
	ok := func(context.Context, []byte) error { return nil }

	tests := []struct {
		name       string
		mode       string
		handler    Handler
		data       string
		delivered  uint64
		wantAck    bool
		wantNak    bool
		wantTerm   bool
		wantLetter bool
	}{
		{name: "success acks", mode: config.AckAlways, handler: ok, data: envelope, delivered: 1, wantAck: true},
		{name: "always mode acks failures", mode: config.AckAlways, handler: failing, data: envelope, delivered: 1, wantAck: true, wantLetter: true},
		{name: "retry mode naks below max deliver", mode: config.AckRetry, handler: failing, data: envelope, delivered: 1, wantNak: true},
		{name: "retry mode terms at max deliver", mode: config.AckRetry, handler: failing, data: envelope, delivered: 3, wantTerm: true, wantLetter: true},
		{name: "retry mode terms invalid envelope", mode: config.AckRetry, handler: ok, data: "not-json", delivered: 1, wantTerm: true, wantLetter: true},
		{
			name: "retry mode terms bad requests",
			mode: config.AckRetry,
			handler: func(context.Context, []byte) error {
				return common.BadRequest("invalid contentType")
			},
			data: envelope, delivered: 1, wantTerm: true, wantLetter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			letters := &recordedLetters{}
			c := NewConsumer(notifCfg(tt.mode), letters)
			c.Handle("create_notification", tt.handler)

			msg := &fakeMsg{data: []byte(tt.data), delivered: tt.delivered}
			c.Process(context.Background(), msg)

			assert.Equal(t, tt.wantAck, msg.acked, "ack")
			assert.Equal(t, tt.wantNak, msg.naked, "nak")
			assert.Equal(t, tt.wantTerm, msg.termed, "term")
			if tt.wantNak {
				assert.Equal(t, 2*time.Second, msg.nakDelay)
			}
			if tt.wantLetter {
				require.Len(t, letters.letters, 1)
				assert.Equal(t, "msg-1", letters.letters[0].MsgID)
				assert.Equal(t, tt.delivered, letters.letters[0].Deliveries)
			} else {
				assert.Empty(t, letters.letters)
			}
		})
	}
}

func TestConsumer_UnknownPattern(t *testing.T) {
	c := NewConsumer(notifCfg(config.AckAlways), nil)
	msg := &fakeMsg{data: []byte(`{"pattern":"something_else","data":{}}`), delivered: 1}

	c.Process(context.Background(), msg)

	assert.True(t, msg.acked)
}

func TestConsumer_HandlerReceivesData(t *testing.T) {
	var got string
	c := NewConsumer(notifCfg(config.AckAlways), nil)
	c.Handle("create_notification", func(_ context.Context, data []byte) error {
		got = string(data)
		return nil
	})

	c.Process(context.Background(), &fakeMsg{data: []byte(envelope), delivered: 1})

	assert.JSONEq(t, `{"senderId":"abc"}`, got)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("boom")
	err := Permanent(base)
	assert.ErrorIs(t, err, base)
	assert.True(t, isPermanent(err))
	assert.False(t, isPermanent(base))
	assert.True(t, isPermanent(common.NotFound("sender not found")))
}

func TestConsumerConfig(t *testing.T) {
	natsCfg := config.NATSConfig{SubjectPrefix: "notifications", Consumer: "notification-dispatcher"}

	tests := []struct {
		name           string
		cfg            config.NotificationConfig
		wantMaxDeliver int
		wantAckWait    time.Duration
	}{
		{
			name:           "always mode delivers once",
			cfg:            config.NotificationConfig{AckMode: config.AckAlways, MaxDeliver: 5, AckWait: 30 * time.Second},
			wantMaxDeliver: 1,
			wantAckWait:    30 * time.Second,
		},
		{
			name:           "retry mode honours max deliver",
			cfg:            config.NotificationConfig{AckMode: config.AckRetry, MaxDeliver: 5, AckWait: 2 * time.Minute},
			wantMaxDeliver: 5,
			wantAckWait:    2 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := consumerConfig(tt.cfg, natsCfg)
			assert.Equal(t, tt.wantMaxDeliver, cc.MaxDeliver)
			assert.Equal(t, tt.wantAckWait, cc.AckWait)
			assert.Equal(t, "notification-dispatcher", cc.Durable)
			assert.Equal(t, "notifications.*", cc.FilterSubject)
			assert.Equal(t, jetstream.AckExplicitPolicy, cc.AckPolicy)
		})
	}
}
