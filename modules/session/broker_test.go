package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestCredentialBroker_SupplyByRequestID(t *testing.T) {
	sink := &eventSink{}
	broker := newCredentialBroker(sink.emit, zap.NewNop())

	type answer struct {
		key string
		err error
	}
	results := make(chan answer, 2)
	for i := 0; i < 2; i++ {
		go func() {
			key, err := broker.RequestCredential(context.Background(), "need key")
			results <- answer{key, err}
		}()
	}

	require.Eventually(t, func() bool { return len(broker.Pending()) == 2 }, time.Second, time.Millisecond)
	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventCredentialRequired, events[0].Type)
	assert.Equal(t, "need key", events[0].Message)

	pending := broker.Pending()
	require.NoError(t, broker.Supply(pending[1], "  second  "))
	first := <-results
	assert.NoError(t, first.err)
	assert.Equal(t, "second", first.key)
	assert.Equal(t, []string{pending[0]}, broker.Pending(), "the other request keeps waiting")

	require.NoError(t, broker.Supply("", "oldest"))
	second := <-results
	assert.Equal(t, "oldest", second.key)
	assert.Empty(t, broker.Pending())
}

func TestCredentialBroker_DeclineAndTimeout(t *testing.T) {
	broker := newCredentialBroker(func(Event) {}, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := broker.RequestCredential(context.Background(), "reason")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(broker.Pending()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, broker.Supply("", "   "))
	assert.ErrorIs(t, <-done, ErrCredentialDeclined)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := broker.RequestCredential(ctx, "reason")
	assert.ErrorIs(t, err, ErrCredentialDeclined)
	assert.Empty(t, broker.Pending(), "timed out requests are forgotten")

	assert.ErrorIs(t, broker.Supply("unknown", "key"), ErrNoPendingRequest)
	assert.ErrorIs(t, broker.Supply("", "key"), ErrNoPendingRequest)
}
