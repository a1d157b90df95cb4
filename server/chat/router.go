// Package chat routes inbound messages to conversation handlers.
//
// Routing is an ordered rule table evaluated top to bottom; the first
// matching rule consumes the message. Whitelisted system commands sit
// above every capture rule, so a user stuck in a flow can always
// escape with "cancel" or "main menu"; the command pre-empts whatever
// the flow was waiting for.
package chat

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mintoctopus/reserve/internal/observability"
	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/notify"
	"github.com/mintoctopus/reserve/server/session"
	"github.com/mintoctopus/reserve/server/slots"
	"github.com/mintoctopus/reserve/store"
)

// RouterDecision records which rule consumed a message. Surfaced for
// logging and tests.
type RouterDecision struct {
	Rule     string
	Consumed bool
}

// request carries one message through the rule table.
type request struct {
	ctx    context.Context
	userID int64
	chatID int64
	text   string
	// session is the user's current session, nil when none exists.
	session *session.Session
}

// rule is one row of the routing table.
type rule struct {
	name   string
	match  func(*request) bool
	handle func(*request) (string, error)
}

// Router owns the conversation state machine. It must be driven from a
// single goroutine: sessions are mutated without locks.
type Router struct {
	profile   *profile.Profile
	sessions  session.Store
	extractor slots.Extractor
	records   *store.Store
	notifier  *notify.Notifier

	// now is injectable for tests; defaults to the wall clock in the
	// profile's zone.
	now func() time.Time

	table []rule
}

// NewRouter wires the routing table.
func NewRouter(p *profile.Profile, sessions session.Store, extractor slots.Extractor, records *store.Store, notifier *notify.Notifier) *Router {
	r := &Router{
		profile:   p,
		sessions:  sessions,
		extractor: extractor,
		records:   records,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().In(p.Location()) },
	}

	// Order is behaviour: commands before captures, bug report above
	// the other captures, menu last as the catch-all.
	r.table = []rule{
		{name: "system_command", match: r.matchSystemCommand, handle: r.handleSystemCommand},
		{name: "bug_report_capture", match: matchAwaiting(session.AwaitingBugReport), handle: r.captureBugReport},
		{name: "cancel_reason_capture", match: matchAwaiting(session.AwaitingCancelReason), handle: r.captureCancelReason},
		{name: "slot_text_capture", match: matchAwaiting(session.AwaitingSlotText), handle: r.captureSlotText},
		{name: "profile_capture", match: matchAwaiting(session.AwaitingProfile), handle: r.captureProfile},
		{name: "menu", match: func(*request) bool { return true }, handle: r.handleMenu},
	}
	return r
}

// ruleNames returns the table's declared order.
func (r *Router) ruleNames() []string {
	names := make([]string, len(r.table))
	for i, rl := range r.table {
		names[i] = rl.name
	}
	return names
}

// Handle routes one message and returns the reply text. Handler errors
// and panics both end with a generic apology and the session cleared: a
// flow that failed mid-step can no longer be trusted, and keeping it
// alive would feed every following message back into the broken
// capture.
func (r *Router) Handle(ctx context.Context, upd *telegram.Update) (reply string, decision RouterDecision) {
	req := &request{
		ctx:     ctx,
		userID:  upd.SenderID(),
		chatID:  upd.ChatID(),
		text:    upd.Text(),
		session: r.sessions.Get(upd.SenderID()),
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panic recovered",
				observability.LogFieldUserID, req.userID,
				"panic", rec,
				"stack", string(debug.Stack()))
			r.sessions.Delete(req.userID)
			reply = replyInternalError
			decision = RouterDecision{Rule: "recovered", Consumed: true}
		}
	}()

	for _, rl := range r.table {
		if !rl.match(req) {
			continue
		}
		text, err := rl.handle(req)
		if err != nil {
			logHandlerError(req, rl.name, err)
			r.sessions.Delete(req.userID)
			return replyInternalError, RouterDecision{Rule: rl.name, Consumed: true}
		}
		return text, RouterDecision{Rule: rl.name, Consumed: true}
	}

	// Unreachable: the menu rule matches everything.
	return replyInternalError, RouterDecision{}
}

// logHandlerError logs through the request context when the bridge put
// one on the context, falling back to the package logger.
func logHandlerError(req *request, handler string, err error) {
	if reqCtx, ok := observability.FromContext(req.ctx); ok {
		reqCtx.Error("handler failed", err,
			slog.String(observability.LogFieldHandler, handler))
		return
	}
	slog.Error("handler failed",
		observability.LogFieldUserID, req.userID,
		observability.LogFieldHandler, handler,
		"error", err)
}

// matchAwaiting matches messages from users whose session waits for the
// given input.
func matchAwaiting(a session.Awaiting) func(*request) bool {
	return func(req *request) bool {
		return req.session != nil && req.session.Awaiting == a
	}
}

// mustSession returns the request's session, creating one on demand.
func (r *Router) mustSession(req *request) *session.Session {
	if req.session == nil {
		req.session = session.New(req.userID)
		r.sessions.Set(req.session)
	}
	return req.session
}

// clearSession ends the user's active flow.
func (r *Router) clearSession(req *request) {
	r.sessions.Delete(req.userID)
	req.session = nil
}
