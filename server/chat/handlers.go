package chat

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mintoctopus/reserve/server/notify"
	"github.com/mintoctopus/reserve/server/session"
	"github.com/mintoctopus/reserve/store"
)

// Reply texts. Button labels from the Russian-speaking client app are
// accepted alongside English, replies stay English.
const (
	replyInternalError = "Something went wrong on our side. Please try again."
	replyWelcome       = "Welcome! Use the menu: add slots, my slots, or report a bug."
	replyMenu          = "Menu: add slots · my slots · report a bug"
	replyCanceled      = "Okay, canceled. Back to the menu."
	replyRoleChanged   = "Role selection reset. Send /start to pick again."
	replyAskSlotText   = "Describe your slots, e.g. \"завтра с 14 до 18 в бане, по часу\"."
	replyAskRephrase   = "I could not find any slots in that. Try again with a date and a time, e.g. \"tomorrow at 16\"."
	replyAutoCanceled  = "I still could not read any slots, so I canceled the flow. Pick it from the menu to retry."
	replyAskBugReport  = "Describe the problem in one message."
	replyBugThanks     = "Thanks, the report was passed to the team."
	replyAskCancel     = "What is the reason for the cancellation?"
	replyCancelSaved   = "Got it, the cancellation was noted."
	replyAskProfile    = "Tell me about yourself: name and what you offer."
	replyProfileSaved  = "Profile saved."
	replyNoSlots       = "You have no published slots yet."
)

// command is one whitelisted system command: synonyms are compared
// against the whole trimmed message, case-insensitively.
type command struct {
	name     string
	synonyms []string
}

// whitelist of commands that pre-empt any active flow.
var commands = []command{
	{name: "start", synonyms: []string{"/start"}},
	{name: "change_role", synonyms: []string{"change role", "сменить роль", "🔄 сменить роль"}},
	{name: "main_menu", synonyms: []string{"main menu", "menu", "главное меню", "меню", "🏠 главное меню"}},
	{name: "cancel", synonyms: []string{"cancel", "отмена", "❌ отмена", "/cancel"}},
}

func matchCommand(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, c := range commands {
		for _, syn := range c.synonyms {
			if normalized == syn {
				return c.name, true
			}
		}
	}
	return "", false
}

func (r *Router) matchSystemCommand(req *request) bool {
	_, ok := matchCommand(req.text)
	return ok
}

// handleSystemCommand clears any active flow first: a command is always
// an exit hatch, whatever the session was waiting for.
func (r *Router) handleSystemCommand(req *request) (string, error) {
	name, _ := matchCommand(req.text)
	r.clearSession(req)

	switch name {
	case "start":
		return replyWelcome, nil
	case "change_role":
		return replyRoleChanged, nil
	case "cancel":
		return replyCanceled, nil
	default:
		return replyMenu, nil
	}
}

// captureBugReport stores the report body and notifies the admin.
func (r *Router) captureBugReport(req *request) (string, error) {
	report, err := r.records.CreateBugReport(req.ctx, req.userID, req.text)
	if err != nil {
		return "", errors.Wrap(err, "failed to store bug report")
	}

	r.notifier.Emit(notify.Event{
		Kind:    notify.KindNewBugReport,
		UserID:  req.userID,
		Summary: truncate(report.Text, 200),
	})
	r.clearSession(req)
	return replyBugThanks, nil
}

// captureCancelReason stores the reason against the booking the flow
// was opened for.
func (r *Router) captureCancelReason(req *request) (string, error) {
	bookingID := req.session.Context["booking_id"]
	if _, err := r.records.CreateCancellationReason(req.ctx, req.userID, bookingID, req.text); err != nil {
		return "", errors.Wrap(err, "failed to store cancellation reason")
	}
	r.clearSession(req)
	return replyCancelSaved, nil
}

// captureSlotText extracts slots from free text. Unparseable texts keep
// the flow open for a bounded number of retries, then auto-cancel.
func (r *Router) captureSlotText(req *request) (string, error) {
	batch := r.extractor.Extract(req.ctx, req.text, r.now())

	if len(batch) == 0 {
		req.session.SlotRetries++
		if req.session.SlotRetries >= r.profile.SlotRetryLimit {
			r.notifier.Emit(notify.Event{
				Kind:    notify.KindFlowAutoCanceled,
				UserID:  req.userID,
				Summary: "slot flow canceled after " + truncate(req.text, 100),
			})
			r.clearSession(req)
			return replyAutoCanceled, nil
		}
		return replyAskRephrase, nil
	}

	saved, err := r.records.CreateSlotBatch(req.ctx, req.userID, batch)
	if err != nil {
		return "", errors.Wrap(err, "failed to store slot batch")
	}

	r.notifier.Emit(notify.Event{
		Kind:    notify.KindNewSlotBatch,
		UserID:  req.userID,
		Summary: formatBatch(saved),
	})
	r.clearSession(req)
	return "Published " + formatBatch(saved), nil
}

// captureProfile saves the master's profile; any slots mentioned in the
// same text are published right away.
func (r *Router) captureProfile(req *request) (string, error) {
	mp := &store.MasterProfile{
		UserID:      req.userID,
		Name:        firstLine(req.text),
		Description: req.text,
		RawText:     req.text,
	}
	if err := r.records.UpsertMasterProfile(req.ctx, mp); err != nil {
		return "", errors.Wrap(err, "failed to store master profile")
	}

	reply := replyProfileSaved
	if batch := r.extractor.Extract(req.ctx, req.text, r.now()); len(batch) > 0 {
		saved, err := r.records.CreateSlotBatch(req.ctx, req.userID, batch)
		if err != nil {
			return "", errors.Wrap(err, "failed to store slot batch")
		}
		reply += " Published " + formatBatch(saved)
	}

	r.clearSession(req)
	return reply, nil
}

// handleMenu is the catch-all for users with no active flow.
func (r *Router) handleMenu(req *request) (string, error) {
	// Booking cards carry a cancel button whose callback data names the
	// booking; pressing it opens the reason capture.
	if bookingID, ok := strings.CutPrefix(strings.TrimSpace(req.text), "cancel_booking:"); ok && bookingID != "" {
		s := r.mustSession(req)
		s.Awaiting = session.AwaitingCancelReason
		s.Context["booking_id"] = bookingID
		return replyAskCancel, nil
	}

	switch normalizeMenuChoice(req.text) {
	case "add_slots":
		s := r.mustSession(req)
		s.Awaiting = session.AwaitingSlotText
		s.SlotRetries = 0
		return replyAskSlotText, nil
	case "report_bug":
		r.mustSession(req).Awaiting = session.AwaitingBugReport
		return replyAskBugReport, nil
	case "become_master":
		r.mustSession(req).Awaiting = session.AwaitingProfile
		return replyAskProfile, nil
	case "my_slots":
		return r.listSlots(req)
	default:
		return replyMenu, nil
	}
}

func normalizeMenuChoice(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch normalized {
	case "add slots", "добавить слоты", "➕ добавить слоты":
		return "add_slots"
	case "report a bug", "report bug", "сообщить об ошибке", "🐞 сообщить об ошибке":
		return "report_bug"
	case "become a master", "стать мастером":
		return "become_master"
	case "my slots", "мои слоты", "📅 мои слоты":
		return "my_slots"
	}
	return ""
}

func (r *Router) listSlots(req *request) (string, error) {
	batches, err := r.records.ListSlotBatches(req.ctx, req.userID)
	if err != nil {
		return "", errors.Wrap(err, "failed to list slot batches")
	}
	if len(batches) == 0 {
		return replyNoSlots, nil
	}

	var b strings.Builder
	b.WriteString("Your slots:\n")
	for _, sb := range batches {
		for _, slot := range sb.Slots {
			b.WriteString("• " + slot.Summary() + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatBatch(sb *store.SlotBatch) string {
	parts := make([]string, len(sb.Slots))
	for i, slot := range sb.Slots {
		parts[i] = slot.Summary()
	}
	return strings.Join(parts, "; ")
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return truncate(strings.TrimSpace(text), 80)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
