// Package bridge hands inbound webhook events from HTTP listener
// goroutines to the single dispatch loop that owns all conversation
// state. Listeners never touch sessions directly: they submit an event
// and wait, bounded, for the loop to finish it.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/semaphore"

	apperr "github.com/mintoctopus/reserve/internal/errors"
	"github.com/mintoctopus/reserve/internal/observability"
	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/chat"
	"github.com/mintoctopus/reserve/server/middleware"
)

const replySlowDown = "Easy there, give me a second between messages."

// InboundEvent is one webhook delivery. Ownership passes to the
// dispatch loop exactly once, at enqueue.
type InboundEvent struct {
	ID         string
	Update     *telegram.Update
	ReceivedAt time.Time
	Listener   string
}

// NewInboundEvent stamps an update with an event id and arrival time.
func NewInboundEvent(upd *telegram.Update, listener string) *InboundEvent {
	return &InboundEvent{
		ID:         shortuuid.New(),
		Update:     upd,
		ReceivedAt: time.Now().UTC(),
		Listener:   listener,
	}
}

// Handler is what the loop runs for each event. *chat.Router satisfies
// it.
type Handler interface {
	Handle(ctx context.Context, upd *telegram.Update) (string, chat.RouterDecision)
}

type work struct {
	event *InboundEvent
	done  chan struct{}
}

// Bridge queues events for the dispatch loop and bounds how long
// listeners wait for completion.
type Bridge struct {
	handler Handler
	sender  telegram.Sender
	limiter *middleware.RateLimiter
	metrics *observability.Metrics

	queue          chan *work
	waiters        *semaphore.Weighted
	handoffTimeout time.Duration

	// loop-only state
	dedupe *dedupe
}

// New creates the bridge from the profile's queue and timeout settings.
func New(p *profile.Profile, handler Handler, sender telegram.Sender, limiter *middleware.RateLimiter, metrics *observability.Metrics) *Bridge {
	return &Bridge{
		handler:        handler,
		sender:         sender,
		limiter:        limiter,
		metrics:        metrics,
		queue:          make(chan *work, p.QueueSize),
		waiters:        semaphore.NewWeighted(int64(p.MaxWaiters)),
		handoffTimeout: p.HandoffTimeout,
		dedupe:         newDedupe(1024),
	}
}

// Submit enqueues an event and waits for the loop to process it.
// Returns nil on completion, a HANDOFF_TIMEOUT error when the wait
// budget runs out (the event still gets processed), and a QUEUE_FULL
// error when the event could not be enqueued at all.
func (b *Bridge) Submit(ctx context.Context, event *InboundEvent) error {
	b.metrics.RecordReceived()

	if !b.waiters.TryAcquire(1) {
		b.metrics.RecordFailed()
		return apperr.QueueFull("too many listeners waiting on the dispatch loop")
	}
	defer b.waiters.Release(1)

	w := &work{event: event, done: make(chan struct{})}
	select {
	case b.queue <- w:
	default:
		b.metrics.RecordFailed()
		return apperr.QueueFull("dispatch queue is full")
	}

	select {
	case <-w.done:
		return nil
	case <-time.After(b.handoffTimeout):
		b.metrics.RecordHandoffTimeout()
		return apperr.HandoffTimeout("dispatch loop did not finish in time")
	case <-ctx.Done():
		b.metrics.RecordHandoffTimeout()
		return apperr.HandoffTimeout("listener gave up waiting")
	}
}

// Run is the dispatch loop. It must be the only goroutine calling the
// handler: per-user ordering and the lock-free session store both rely
// on it.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-b.queue:
			b.process(ctx, w.event)
			close(w.done)
		}
	}
}

func (b *Bridge) process(ctx context.Context, event *InboundEvent) {
	upd := event.Update
	userID := upd.SenderID()
	chatID := upd.ChatID()

	// Check → process → mark: only a fully processed update is
	// remembered, so a crash mid-event leaves it redeliverable.
	if upd.UpdateID != 0 && b.dedupe.Check(upd.UpdateID) {
		slog.Debug("duplicate update ignored",
			observability.LogFieldEventID, event.ID,
			"update_id", upd.UpdateID)
		return
	}

	if userID != 0 && b.limiter != nil && !b.limiter.AllowUser(userID) {
		b.reply(ctx, event, chatID, replySlowDown)
		b.markProcessed(upd.UpdateID)
		return
	}

	reqCtx := observability.NewRequestContext(slog.Default(), "dispatch_loop", userID)
	text, decision := b.handler.Handle(observability.WithRequestContext(ctx, reqCtx), upd)
	reqCtx.Handler = decision.Rule
	reqCtx.Info("event processed",
		slog.String(observability.LogFieldEventID, event.ID),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))

	// The reply goes out after the handler has finished, so a slow
	// platform API never counts against handler latency.
	b.reply(ctx, event, chatID, text)
	b.markProcessed(upd.UpdateID)
	b.metrics.RecordProcessed()
}

func (b *Bridge) markProcessed(updateID int64) {
	if updateID != 0 {
		b.dedupe.Mark(updateID)
	}
}

func (b *Bridge) reply(ctx context.Context, event *InboundEvent, chatID int64, text string) {
	if chatID == 0 || text == "" {
		return
	}
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("failed to send reply",
			observability.LogFieldEventID, event.ID,
			"error", err)
	}
}
