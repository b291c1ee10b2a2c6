package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/tests/testutil"
)

func TestInMemoryEventBus_Publish(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler, "settlement.generated")

	event := testutil.NewTestEvent("settlement.generated", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler.Handled(), 1)
	assert.Equal(t, event, handler.Handled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler, "settlement.generated")

	event1 := testutil.NewTestEvent("settlement.generated", uuid.New())
	event2 := testutil.NewTestEvent("settlement.generated", uuid.New())
	err := bus.Publish(context.Background(), event1, event2)

	require.NoError(t, err)
	assert.Len(t, handler.Handled(), 2)
}

func TestInMemoryEventBus_Publish_MultipleHandlers(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler1 := testutil.NewMockEventHandler("settlement.generated")
	handler2 := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler1, "settlement.generated")
	bus.Subscribe(handler2, "settlement.generated")

	event := testutil.NewTestEvent("settlement.generated", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler1.Handled(), 1)
	assert.Len(t, handler2.Handled(), 1)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	wildcardHandler := testutil.NewMockEventHandler() // No event types = wildcard
	bus.Subscribe(wildcardHandler)

	event := testutil.NewTestEvent("dunning.level_changed", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, wildcardHandler.Handled(), 1)
}

func TestInMemoryEventBus_Publish_HandlerError(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler1 := testutil.NewMockEventHandler("settlement.generated")
	handler1.SetError(errors.New("handler error"))
	handler2 := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler1, "settlement.generated")
	bus.Subscribe(handler2, "settlement.generated")

	event := testutil.NewTestEvent("settlement.generated", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler1.Handled(), 1)
	assert.Len(t, handler2.Handled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := testutil.NewMockEventHandler("payout.failed")
	bus.Subscribe(handler, "payout.failed")

	event := testutil.NewTestEvent("settlement.generated", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler.Handled(), 0)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler, "settlement.generated")

	event1 := testutil.NewTestEvent("settlement.generated", uuid.New())
	_ = bus.Publish(context.Background(), event1)
	assert.Len(t, handler.Handled(), 1)

	bus.Unsubscribe(handler)

	event2 := testutil.NewTestEvent("settlement.generated", uuid.New())
	_ = bus.Publish(context.Background(), event2)
	assert.Len(t, handler.Handled(), 1) // Still 1, not 2
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	ctx := context.Background()
	err := bus.Start(ctx)
	require.NoError(t, err)

	// Can still publish after start
	handler := testutil.NewMockEventHandler("settlement.generated")
	bus.Subscribe(handler, "settlement.generated")
	event := testutil.NewTestEvent("settlement.generated", uuid.New())
	err = bus.Publish(ctx, event)
	require.NoError(t, err)
	assert.Len(t, handler.Handled(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = bus.Stop(ctx)
	require.NoError(t, err)
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, shared.DomainEvent) error { panic("boom") }
func (panicHandler) EventTypes() []string                             { return nil }

func TestInMemoryEventBus_Publish_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	after := testutil.NewMockEventHandler()
	bus.Subscribe(panicHandler{})
	bus.Subscribe(after)

	require.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("settlement.paid", uuid.New())))
	})
	assert.Len(t, after.Handled(), 1)
}

type blockingHandler struct {
	release chan struct{}
	done    chan struct{}
	ctxErr  error
}

func (h *blockingHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	<-h.release
	h.ctxErr = ctx.Err()
	close(h.done)
	return nil
}

func (h *blockingHandler) EventTypes() []string { return []string{"settlement.generated"} }

func TestInMemoryEventBus_AsyncDispatch(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithAsyncDispatch())
	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.Running())

	handler := &blockingHandler{release: make(chan struct{}), done: make(chan struct{})}
	bus.Subscribe(handler)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, testutil.NewTestEvent("settlement.generated", uuid.New())))
	cancel()

	// Publish returned while the handler is still blocked
	select {
	case <-handler.done:
		t.Fatal("handler finished before release")
	default:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stopCancel()
	assert.ErrorIs(t, bus.Stop(stopCtx), context.DeadlineExceeded)

	close(handler.release)
	require.NoError(t, bus.Stop(context.Background()))
	<-handler.done
	assert.NoError(t, handler.ctxErr, "handlers run detached from the publisher's cancellation")
	assert.False(t, bus.Running())
}

func TestMetricsHandler_SubscribesToAll(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := NewMetricsHandler(nil)
	assert.Nil(t, h.EventTypes())
	bus.Subscribe(h)

	assert.Len(t, bus.registry.GetHandlers("payout.failed"), 1)
	assert.NoError(t, h.Handle(context.Background(), testutil.NewTestEvent("payout.failed", uuid.New())))
}

func TestInMemoryEventBus_AsyncDeliversEveryEvent(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithAsyncDispatch())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	handler := testutil.NewMockEventHandler("settlement.paid")
	bus.Subscribe(handler)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("settlement.paid", uuid.New())))
	}
	assert.True(t, testutil.WaitForEventCount(t, handler, 5, time.Second))
}
