// Package session holds per-user conversation state. Sessions are
// ephemeral: they live in process memory and do not survive a restart,
// which at worst asks a user to repeat one in-flight answer.
package session

// Awaiting names the input a user's active flow is waiting for.
type Awaiting string

const (
	// AwaitingNone means no flow is active; messages route to the
	// top-level menu rules.
	AwaitingNone Awaiting = ""
	// AwaitingBugReport waits for the body of a bug report.
	AwaitingBugReport Awaiting = "bug_report"
	// AwaitingCancelReason waits for a cancellation reason.
	AwaitingCancelReason Awaiting = "cancel_reason"
	// AwaitingSlotText waits for a free-form slot description.
	AwaitingSlotText Awaiting = "slot_text"
	// AwaitingProfile waits for a master's profile text.
	AwaitingProfile Awaiting = "profile"
)

// Session is one user's conversation state.
type Session struct {
	UserID   int64
	Awaiting Awaiting
	// Context carries flow-scoped scratch data, such as the booking id
	// a cancellation reason belongs to.
	Context map[string]string
	// SlotRetries counts consecutive unparseable slot texts; the slot
	// flow auto-cancels when it reaches the configured limit.
	SlotRetries int
}

// New creates an empty session for the user.
func New(userID int64) *Session {
	return &Session{UserID: userID, Context: map[string]string{}}
}

// Store is the session registry. Implementations are touched only from
// the dispatch loop, so they carry no locks; they must not be shared
// with other goroutines.
type Store interface {
	// Get returns the user's session, or nil when none exists.
	Get(userID int64) *Session
	// Set stores the session under its user id.
	Set(s *Session)
	// Delete removes the user's session. Deleting an absent session
	// is a no-op.
	Delete(userID int64)
}

// MemoryStore is the in-memory Store used in production. State is
// intentionally process-local; see the package comment.
type MemoryStore struct {
	sessions map[int64]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[int64]*Session{}}
}

func (m *MemoryStore) Get(userID int64) *Session {
	return m.sessions[userID]
}

func (m *MemoryStore) Set(s *Session) {
	m.sessions[s.UserID] = s
}

func (m *MemoryStore) Delete(userID int64) {
	delete(m.sessions, userID)
}
