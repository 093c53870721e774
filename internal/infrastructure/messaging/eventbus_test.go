package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/articulearn/progress-engine/internal/domain/shared"
)

type recordingHandler struct {
	mu     sync.Mutex
	name   string
	events []shared.Event
	err    error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, event shared.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(Config{AsyncMode: false, HandlerTimeout: time.Second})
}

func TestPublishDeliversToSubscribedType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	xp := &recordingHandler{name: "xp"}
	level := &recordingHandler{name: "level"}
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, xp))
	assert.NoError(t, bus.Subscribe(shared.EventLevelUp, level))

	err := bus.Publish(shared.NewXPGainedEvent("user-1", 10, 110))

	assert.NoError(t, err)
	assert.Equal(t, 1, xp.count())
	assert.Equal(t, 0, level.count())
}

func TestPublishDeliversToGlobalHandlers(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	all := &recordingHandler{name: "audit"}
	assert.NoError(t, bus.SubscribeAll(all))

	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 10, 10)))
	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 0, 1)))

	assert.Equal(t, 2, all.count())
}

func TestPublishSwallowsHandlerErrors(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	failing := &recordingHandler{name: "failing", err: errors.New("boom")}
	healthy := &recordingHandler{name: "healthy"}
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, failing))
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, healthy))

	err := bus.Publish(shared.NewXPGainedEvent("user-1", 10, 10))

	assert.NoError(t, err, "handler failures never reach the publisher")
	assert.Equal(t, 1, healthy.count())
}

func TestPublishWithoutHandlersIsNoop(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2)))
}

func TestPublishNilEvent(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.Error(t, bus.Publish(nil))
}

func TestSubscribeNilHandler(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGained, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestClosedBusRejectsOperations(t *testing.T) {
	bus := syncBus()
	assert.NoError(t, bus.Close())

	h := &recordingHandler{name: "late"}
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGained, h), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(shared.NewXPGainedEvent("user-1", 10, 10)), ErrEventBusClosed)
	assert.NoError(t, bus.Close(), "closing twice is safe")
}

func TestAsyncPublishCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 2, HandlerTimeout: time.Second})

	h := &recordingHandler{name: "async"}
	assert.NoError(t, bus.Subscribe(shared.EventXPGained, h))

	for i := 0; i < 5; i++ {
		assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 10, 10)))
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 5, h.count())
	assert.NoError(t, bus.Close())
}
