package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCredentialDeclined = errors.New("credential request declined")
	ErrNoPendingRequest   = errors.New("no pending credential request")
)

// CredentialBroker turns the orchestrator's credential prompt into an event
// plus a wait for the answer. Each request has its own id, so several
// suspended video generations can wait at once.
type CredentialBroker struct {
	emit func(Event)
	log  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan string
	order   []string
}

func newCredentialBroker(emit func(Event), log *zap.Logger) *CredentialBroker {
	return &CredentialBroker{
		emit:    emit,
		log:     log,
		pending: make(map[string]chan string),
	}
}

// RequestCredential emits credential_required and blocks until Supply,
// ctx expiry or cancellation. A blank answer counts as declined.
func (b *CredentialBroker) RequestCredential(ctx context.Context, reason string) (string, error) {
	id := uuid.NewString()
	answer := make(chan string, 1)

	b.mu.Lock()
	b.pending[id] = answer
	b.order = append(b.order, id)
	b.mu.Unlock()
	defer b.forget(id)

	b.log.Info("Waiting for credential", zap.String("request_id", id))
	b.emit(Event{Type: EventCredentialRequired, RequestID: id, Message: reason})

	select {
	case key := <-answer:
		key = strings.TrimSpace(key)
		if key == "" {
			return "", ErrCredentialDeclined
		}
		return key, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrCredentialDeclined, ctx.Err())
	}
}

// Supply answers requestID. An empty requestID answers the oldest pending request.
func (b *CredentialBroker) Supply(requestID, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if requestID == "" && len(b.order) > 0 {
		requestID = b.order[0]
	}
	answer, ok := b.pending[requestID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPendingRequest, requestID)
	}
	b.removeLocked(requestID)
	answer <- key
	return nil
}

// Pending lists open request ids, oldest first.
func (b *CredentialBroker) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (b *CredentialBroker) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *CredentialBroker) removeLocked(id string) {
	delete(b.pending, id)
	for i, pending := range b.order {
		if pending == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
