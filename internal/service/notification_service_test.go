package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/pkg/config"
)

type notifierStub struct {
	mu       sync.Mutex
	failures int
	calls    int
	done     chan Notification
}

func (n *notifierStub) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	n.calls++
	fail := n.failures > 0
	if fail {
		n.failures--
	}
	n.mu.Unlock()
	if fail {
		return errors.New("smtp unavailable")
	}
	n.done <- msg
	return nil
}

func TestNotificationServiceDeliversWithRetry(t *testing.T) {
	notifier := &notifierStub{failures: 1, done: make(chan Notification, 1)}
	metrics := NewMetricsService()
	svc := NewNotificationService(notifier, config.NotificationsConfig{Enabled: true, Workers: 1, Retries: 2, RetryDelay: 10 * time.Millisecond}, metrics, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	accepted, err := svc.Dispatch(context.Background(), Notification{Channel: "email", DeclarationID: "d1", Recipient: "a@b.c"})
	require.NoError(t, err)
	assert.True(t, accepted)

	select {
	case msg := <-notifier.done:
		assert.Equal(t, "a@b.c", msg.Recipient)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	notifier.mu.Lock()
	assert.Equal(t, 2, notifier.calls)
	notifier.mu.Unlock()
}

func TestNotificationServiceDisabled(t *testing.T) {
	svc := NewNotificationService(NewLogNotifier(nil), config.NotificationsConfig{Enabled: false}, nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	accepted, err := svc.Dispatch(context.Background(), Notification{Channel: "email"})
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestNotificationServiceSkipsNoneChannel(t *testing.T) {
	svc := NewNotificationService(NewLogNotifier(nil), config.NotificationsConfig{Enabled: true}, nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	accepted, err := svc.Dispatch(context.Background(), Notification{Channel: "none"})
	require.NoError(t, err)
	assert.False(t, accepted)
}
