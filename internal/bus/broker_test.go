package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) interface{} {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected event: %v", v)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_PublishToTopicSubscribers(t *testing.T) {
	b := NewBroker(8)
	ctx := context.Background()

	chatSub := b.Subscribe(ctx, "addMessageToChat", nil)
	defer chatSub.Close()
	notifSub := b.Subscribe(ctx, "newNotification", nil)
	defer notifSub.Close()

	b.Publish("addMessageToChat", "hello")

	assert.Equal(t, "hello", receive(t, chatSub))
	assertNothing(t, notifSub)
}

func TestBroker_PredicateFiltersPerSubscriber(t *testing.T) {
	b := NewBroker(8)
	type userKey struct{}

	only := func(ctx context.Context, payload interface{}) bool {
		return payload.(string) == ctx.Value(userKey{}).(string)
	}
	alice := b.Subscribe(context.WithValue(context.Background(), userKey{}, "alice"), "topic", only)
	defer alice.Close()
	bob := b.Subscribe(context.WithValue(context.Background(), userKey{}, "bob"), "topic", only)
	defer bob.Close()

	b.Publish("topic", "bob")

	assert.Equal(t, "bob", receive(t, bob))
	assertNothing(t, alice)
}

func TestBroker_NoReplayForLateSubscribers(t *testing.T) {
	b := NewBroker(8)
	b.Publish("topic", "early")

	sub := b.Subscribe(context.Background(), "topic", nil)
	defer sub.Close()

	assertNothing(t, sub)
	b.Publish("topic", "late")
	assert.Equal(t, "late", receive(t, sub))
}

func TestBroker_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker(1)
	sub := b.Subscribe(context.Background(), "topic", nil)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		b.Publish("topic", 1)
		b.Publish("topic", 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, 1, receive(t, sub))
	assertNothing(t, sub)
}

func TestBroker_ContextCancelEndsSubscription(t *testing.T) {
	b := NewBroker(8)
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, "topic", nil)
	require.Equal(t, 1, b.SubscriberCount("topic"))

	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Equal(t, 0, b.SubscriberCount("topic"))

	// a new connection restarts cleanly
	again := b.Subscribe(context.Background(), "topic", nil)
	defer again.Close()
	b.Publish("topic", "x")
	assert.Equal(t, "x", receive(t, again))
}

func TestBroker_CloseIsIdempotent(t *testing.T) {
	b := NewBroker(8)
	sub := b.Subscribe(context.Background(), "topic", nil)
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount("topic"))
}

func TestBroker_Shutdown(t *testing.T) {
	b := NewBroker(8)
	s1 := b.Subscribe(context.Background(), "a", nil)
	s2 := b.Subscribe(context.Background(), "b", nil)

	b.Shutdown()

	_, ok := <-s1.C()
	assert.False(t, ok)
	_, ok = <-s2.C()
	assert.False(t, ok)

	late := b.Subscribe(context.Background(), "a", nil)
	_, ok = <-late.C()
	assert.False(t, ok)
	late.Close()
}

func TestBroker_ConcurrentPublishAndClose(t *testing.T) {
	b := NewBroker(4)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		sub := b.Subscribe(context.Background(), "topic", nil)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish("topic", j)
			}
		}()
		go func(s *Subscription) {
			defer wg.Done()
			s.Close()
		}(sub)
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount("topic"))
}
