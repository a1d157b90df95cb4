package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/mintoctopus/reserve/internal/errors"
	"github.com/mintoctopus/reserve/internal/observability"
	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/chat"
	"github.com/mintoctopus/reserve/server/middleware"
)

type stubHandler struct {
	mu    sync.Mutex
	texts []string
	// block, when set, stalls the handler until the channel closes.
	block chan struct{}
}

func (h *stubHandler) Handle(_ context.Context, upd *telegram.Update) (string, chat.RouterDecision) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.texts = append(h.texts, upd.Text())
	h.mu.Unlock()
	return "echo: " + upd.Text(), chat.RouterDecision{Rule: "stub", Consumed: true}
}

func (h *stubHandler) handled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) SendMessage(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		QueueSize:      16,
		MaxWaiters:     4,
		HandoffTimeout: 200 * time.Millisecond,
	}
}

func update(updateID, userID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			From: &telegram.User{ID: userID},
			Chat: telegram.Chat{ID: userID},
			Text: text,
		},
	}
}

func newTestBridge(handler Handler, sender telegram.Sender, limiter *middleware.RateLimiter) (*Bridge, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return New(testProfile(), handler, sender, limiter, metrics), metrics
}

func TestSubmit_ProcessedAndReplied(t *testing.T) {
	handler := &stubHandler{}
	sender := &recordingSender{}
	b, metrics := newTestBridge(handler, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	err := b.Submit(ctx, NewInboundEvent(update(1, 7, "hello"), "webhook"))
	require.NoError(t, err)

	assert.Equal(t, []string{"hello"}, handler.handled())
	assert.Equal(t, []string{"echo: hello"}, sender.sent())

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.EventsReceived)
	assert.Equal(t, int64(1), snap.EventsProcessed)
}

func TestSubmit_DuplicateUpdateProcessedOnce(t *testing.T) {
	handler := &stubHandler{}
	b, _ := newTestBridge(handler, &recordingSender{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Submit(ctx, NewInboundEvent(update(42, 7, "hello"), "webhook")))
	require.NoError(t, b.Submit(ctx, NewInboundEvent(update(42, 7, "hello"), "webhook")))

	assert.Equal(t, []string{"hello"}, handler.handled())
}

func TestSubmit_PerUserOrderPreserved(t *testing.T) {
	handler := &stubHandler{}
	b, _ := newTestBridge(handler, &recordingSender{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, b.Submit(ctx, NewInboundEvent(update(int64(i+1), 7, text), "webhook")))
	}
	assert.Equal(t, []string{"first", "second", "third"}, handler.handled())
}

func TestSubmit_HandoffTimeout(t *testing.T) {
	block := make(chan struct{})
	handler := &stubHandler{block: block}
	b, metrics := newTestBridge(handler, &recordingSender{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	err := b.Submit(ctx, NewInboundEvent(update(1, 7, "slow"), "webhook"))
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.ErrCodeHandoffTimeout))
	assert.Equal(t, int64(1), metrics.Snapshot().HandoffTimeouts)

	// The event is still processed after the listener gave up.
	close(block)
	require.Eventually(t, func() bool {
		return len(handler.handled()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSubmit_QueueFull(t *testing.T) {
	p := testProfile()
	p.QueueSize = 1
	b := New(p, &stubHandler{block: make(chan struct{})}, &recordingSender{}, nil, observability.NewMetrics())

	// No loop running: the first submit occupies the queue slot.
	go func() { _ = b.Submit(context.Background(), NewInboundEvent(update(1, 7, "a"), "webhook")) }()

	require.Eventually(t, func() bool {
		err := b.Submit(context.Background(), NewInboundEvent(update(2, 7, "b"), "webhook"))
		return apperr.IsCode(err, apperr.ErrCodeQueueFull)
	}, time.Second, 10*time.Millisecond)
}

func TestSubmit_WaiterCapEnforced(t *testing.T) {
	p := testProfile()
	p.MaxWaiters = 1
	p.HandoffTimeout = time.Second
	b := New(p, &stubHandler{}, &recordingSender{}, nil, observability.NewMetrics())

	// No loop running: the first submit enqueues and holds the only
	// waiter permit.
	started := make(chan struct{})
	go func() {
		close(started)
		_ = b.Submit(context.Background(), NewInboundEvent(update(1, 7, "a"), "webhook"))
	}()
	<-started

	require.Eventually(t, func() bool {
		err := b.Submit(context.Background(), NewInboundEvent(update(2, 7, "b"), "webhook"))
		return apperr.IsCode(err, apperr.ErrCodeQueueFull)
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimitedUserGetsSlowDownReply(t *testing.T) {
	handler := &stubHandler{}
	sender := &recordingSender{}
	limiter := middleware.NewRateLimiter(time.Hour, 1)
	b, _ := newTestBridge(handler, sender, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Submit(ctx, NewInboundEvent(update(1, 7, "one"), "webhook")))
	require.NoError(t, b.Submit(ctx, NewInboundEvent(update(2, 7, "two"), "webhook")))

	// Only the first message reached the router.
	assert.Equal(t, []string{"one"}, handler.handled())
	require.Len(t, sender.sent(), 2)
	assert.Equal(t, replySlowDown, sender.sent()[1])
}

func TestDedupe_EvictsOldest(t *testing.T) {
	d := newDedupe(2)

	d.Mark(1)
	d.Mark(2)
	assert.True(t, d.Check(1))
	assert.True(t, d.Check(2))

	d.Mark(3)
	assert.False(t, d.Check(1))
	assert.True(t, d.Check(2))
	assert.True(t, d.Check(3))
}
