package chat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/notify"
	"github.com/mintoctopus/reserve/server/session"
	"github.com/mintoctopus/reserve/server/slots"
	"github.com/mintoctopus/reserve/store"
	"github.com/mintoctopus/reserve/store/db/sqlite"
)

var testZone = time.FixedZone("MSK", 3*60*60)

// Reference: Saturday 2025-08-02 10:00 MSK.
var testNow = time.Date(2025, 8, 2, 10, 0, 0, 0, testZone)

type fixture struct {
	router   *Router
	sessions session.Store
	records  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithExtractor(t, slots.NewEngine(nil, slots.NewFallbackExtractor(testZone), nil))
}

func newFixtureWithExtractor(t *testing.T, extractor slots.Extractor) *fixture {
	t.Helper()

	p := &profile.Profile{Mode: "demo", Driver: "sqlite", DSN: ":memory:", SlotRetryLimit: 3}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	records := store.New(driver, p)

	sessions := session.NewMemoryStore()
	notifier := notify.NewNotifier(telegram.NopSender{}, 0, 16)

	router := NewRouter(p, sessions, extractor, records, notifier)
	router.now = func() time.Time { return testNow }

	return &fixture{router: router, sessions: sessions, records: records}
}

func message(userID int64, text string) *telegram.Update {
	return &telegram.Update{
		Message: &telegram.Message{
			From: &telegram.User{ID: userID},
			Chat: telegram.Chat{ID: userID},
			Text: text,
		},
	}
}

func callback(userID int64, data string) *telegram.Update {
	return &telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			From:    &telegram.User{ID: userID},
			Message: &telegram.Message{Chat: telegram.Chat{ID: userID}},
			Data:    data,
		},
	}
}

func TestRuleTableOrder(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{
		"system_command",
		"bug_report_capture",
		"cancel_reason_capture",
		"slot_text_capture",
		"profile_capture",
		"menu",
	}, f.router.ruleNames())
}

func TestSystemCommandPreemptsBugReportCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := session.New(7)
	s.Awaiting = session.AwaitingBugReport
	f.sessions.Set(s)

	reply, decision := f.router.Handle(ctx, message(7, "change role"))

	assert.Equal(t, "system_command", decision.Rule)
	assert.True(t, decision.Consumed)
	assert.Equal(t, replyRoleChanged, reply)
	// The command cleared the flow; the text was not captured as a report.
	assert.Nil(t, f.sessions.Get(7))
}

func TestSystemCommandPreemptsEveryCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, awaiting := range []session.Awaiting{
		session.AwaitingBugReport,
		session.AwaitingCancelReason,
		session.AwaitingSlotText,
		session.AwaitingProfile,
	} {
		s := session.New(7)
		s.Awaiting = awaiting
		f.sessions.Set(s)

		_, decision := f.router.Handle(ctx, message(7, "❌ Отмена"))
		assert.Equal(t, "system_command", decision.Rule, "awaiting %q", awaiting)
		assert.Nil(t, f.sessions.Get(7), "awaiting %q", awaiting)
	}
}

func TestBugReportCaptureBeatsOtherMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := session.New(7)
	s.Awaiting = session.AwaitingBugReport
	f.sessions.Set(s)

	// Text that would also read as a slot description still lands in
	// the bug report while that capture is active.
	reply, decision := f.router.Handle(ctx, message(7, "завтра в 16 кнопка не работает"))

	assert.Equal(t, "bug_report_capture", decision.Rule)
	assert.Equal(t, replyBugThanks, reply)
	assert.Nil(t, f.sessions.Get(7))
}

func TestMenuFallthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, decision := f.router.Handle(ctx, message(7, "what is this bot?"))
	assert.Equal(t, "menu", decision.Rule)
	assert.Equal(t, replyMenu, reply)
}

func TestStartCommand(t *testing.T) {
	f := newFixture(t)

	reply, decision := f.router.Handle(context.Background(), message(7, "/start"))
	assert.Equal(t, "system_command", decision.Rule)
	assert.Equal(t, replyWelcome, reply)
}

// brokenDriver fails every write, standing in for a database outage.
type brokenDriver struct{}

func (brokenDriver) GetDB() *sql.DB                              { return nil }
func (brokenDriver) Close() error                                { return nil }
func (brokenDriver) IsInitialized(context.Context) (bool, error) { return true, nil }
func (brokenDriver) Migrate(context.Context) error               { return nil }
func (brokenDriver) GetRecord(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (brokenDriver) SetRecord(context.Context, string, []byte) error {
	return errors.New("database gone")
}
func (brokenDriver) DeleteRecord(context.Context, string) error { return nil }
func (brokenDriver) ListRecords(context.Context, string) ([]*store.Record, error) {
	return nil, nil
}

func TestHandlerErrorClearsSession(t *testing.T) {
	p := &profile.Profile{Mode: "demo", SlotRetryLimit: 3}
	records := store.New(brokenDriver{}, p)
	sessions := session.NewMemoryStore()
	notifier := notify.NewNotifier(telegram.NopSender{}, 0, 16)
	engine := slots.NewEngine(nil, slots.NewFallbackExtractor(testZone), nil)
	router := NewRouter(p, sessions, engine, records, notifier)
	router.now = func() time.Time { return testNow }
	ctx := context.Background()

	s := session.New(7)
	s.Awaiting = session.AwaitingBugReport
	sessions.Set(s)

	reply, decision := router.Handle(ctx, message(7, "the menu button does nothing"))
	assert.Equal(t, "bug_report_capture", decision.Rule)
	assert.Equal(t, replyInternalError, reply)
	// The failed write ended the flow; the next message must not land
	// in the broken capture again.
	assert.Nil(t, sessions.Get(7))

	_, decision = router.Handle(ctx, message(7, "hello?"))
	assert.Equal(t, "menu", decision.Rule)
}

type panicExtractor struct{}

func (panicExtractor) Extract(context.Context, string, time.Time) slots.Batch {
	panic("extractor exploded")
}

func TestHandlerPanicRecovered(t *testing.T) {
	f := newFixtureWithExtractor(t, panicExtractor{})
	ctx := context.Background()

	s := session.New(7)
	s.Awaiting = session.AwaitingSlotText
	f.sessions.Set(s)

	reply, decision := f.router.Handle(ctx, message(7, "завтра в 16"))

	assert.Equal(t, "recovered", decision.Rule)
	assert.True(t, decision.Consumed)
	assert.Equal(t, replyInternalError, reply)
	// Session state cannot be trusted after a panic.
	assert.Nil(t, f.sessions.Get(7))
}
