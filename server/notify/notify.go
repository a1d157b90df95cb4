// Package notify delivers admin notifications. Handlers emit events on
// a buffered channel; a background forwarder pushes them to the admin
// chat. A full buffer drops the event with a log line; notifications
// are advisory and must never block the dispatch loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mintoctopus/reserve/internal/telegram"
)

// Kind classifies an admin notification.
type Kind string

const (
	KindNewBugReport     Kind = "new_bug_report"
	KindNewSlotBatch     Kind = "new_slot_batch"
	KindFlowAutoCanceled Kind = "flow_auto_canceled"
)

// Event is one admin notification.
type Event struct {
	Kind    Kind
	UserID  int64
	Summary string
	At      time.Time
}

// Notifier fans events out to the admin chat.
type Notifier struct {
	events      chan Event
	sender      telegram.Sender
	adminChatID int64
}

// NewNotifier creates a notifier with the given buffer size. With an
// adminChatID of 0 events are consumed and dropped, which keeps dev
// setups working without an admin chat.
func NewNotifier(sender telegram.Sender, adminChatID int64, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Notifier{
		events:      make(chan Event, bufferSize),
		sender:      sender,
		adminChatID: adminChatID,
	}
}

// Emit queues an event without blocking. On a full buffer the event is
// dropped and logged.
func (n *Notifier) Emit(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case n.events <- event:
	default:
		slog.Warn("notification buffer full, dropping event",
			"kind", event.Kind, "user_id", event.UserID)
	}
}

// Run forwards queued events until the context is canceled. Intended to
// run on its own goroutine.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.events:
			n.deliver(ctx, event)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, event Event) {
	if n.adminChatID == 0 {
		return
	}
	text := formatEvent(event)
	if err := n.sender.SendMessage(ctx, n.adminChatID, text); err != nil {
		slog.Error("failed to deliver admin notification",
			"kind", event.Kind, "user_id", event.UserID, "error", err)
	}
}

func formatEvent(event Event) string {
	var title string
	switch event.Kind {
	case KindNewBugReport:
		title = "🐞 New bug report"
	case KindNewSlotBatch:
		title = "📅 New slots published"
	case KindFlowAutoCanceled:
		title = "⚠️ Flow auto-canceled"
	default:
		title = string(event.Kind)
	}
	return fmt.Sprintf("%s\nuser: %d\n%s", title, event.UserID, event.Summary)
}
