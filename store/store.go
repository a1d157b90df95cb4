// Package store persists the service's durable records (master
// profiles, published slot batches, bug reports and cancellation
// reasons) as JSON values in
// a key/value table behind a database driver. SQLite is the default;
// PostgreSQL is available for deployments that already run one.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/server/slots"
)

// Key prefixes partition the record space per model.
const (
	masterKeyPrefix = "master/"
	slotsKeyPrefix  = "slots/"
	bugKeyPrefix    = "bug/"
	cancelKeyPrefix = "cancel/"
)

// MasterProfile is a master's onboarding record.
type MasterProfile struct {
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	RawText     string    `json:"raw_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// SlotBatch is one published batch of slots.
type SlotBatch struct {
	ID        string                `json:"id"`
	MasterID  int64                 `json:"master_id"`
	Slots     []slots.SlotCandidate `json:"slots"`
	CreatedAt time.Time             `json:"created_at"`
}

// CancellationReason is a client's stated reason for cancelling a
// booking.
type CancellationReason struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	BookingID string    `json:"booking_id,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// BugReport is one captured bug report.
type BugReport struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides typed access to the record table.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{driver: driver, profile: profile}
}

// GetDriver returns the underlying driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Get reads a raw record. Absence is reported through the bool.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.driver.GetRecord(ctx, key)
}

// Set writes a raw record, overwriting any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.driver.SetRecord(ctx, key, value)
}

// Delete removes a raw record. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.driver.DeleteRecord(ctx, key)
}

// UpsertMasterProfile writes the master's profile record.
func (s *Store) UpsertMasterProfile(ctx context.Context, mp *MasterProfile) error {
	if mp.CreatedAt.IsZero() {
		mp.CreatedAt = time.Now().UTC()
	}
	return s.setJSON(ctx, masterKey(mp.UserID), mp)
}

// GetMasterProfile returns the master's profile, or nil when absent.
func (s *Store) GetMasterProfile(ctx context.Context, userID int64) (*MasterProfile, error) {
	var mp MasterProfile
	found, err := s.getJSON(ctx, masterKey(userID), &mp)
	if err != nil || !found {
		return nil, err
	}
	return &mp, nil
}

// CreateSlotBatch persists a newly extracted batch under a fresh id.
func (s *Store) CreateSlotBatch(ctx context.Context, masterID int64, batch []slots.SlotCandidate) (*SlotBatch, error) {
	sb := &SlotBatch{
		ID:        shortuuid.New(),
		MasterID:  masterID,
		Slots:     batch,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.setJSON(ctx, slotsKey(masterID, sb.ID), sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// ListSlotBatches returns all batches a master has published, ordered
// by creation time.
func (s *Store) ListSlotBatches(ctx context.Context, masterID int64) ([]*SlotBatch, error) {
	records, err := s.driver.ListRecords(ctx, slotsKeyPrefix+fmt.Sprintf("%d/", masterID))
	if err != nil {
		return nil, err
	}
	batches := make([]*SlotBatch, 0, len(records))
	for _, rec := range records {
		var sb SlotBatch
		if err := json.Unmarshal(rec.Value, &sb); err != nil {
			return nil, errors.Wrapf(err, "corrupt slot batch record %q", rec.Key)
		}
		batches = append(batches, &sb)
	}
	sortSlotBatches(batches)
	return batches, nil
}

// CreateBugReport persists a captured bug report under a fresh id.
func (s *Store) CreateBugReport(ctx context.Context, userID int64, text string) (*BugReport, error) {
	br := &BugReport{
		ID:        shortuuid.New(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.setJSON(ctx, bugKeyPrefix+br.ID, br); err != nil {
		return nil, err
	}
	return br, nil
}

// CreateCancellationReason persists a captured cancellation reason.
func (s *Store) CreateCancellationReason(ctx context.Context, userID int64, bookingID, reason string) (*CancellationReason, error) {
	cr := &CancellationReason{
		ID:        shortuuid.New(),
		UserID:    userID,
		BookingID: bookingID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.setJSON(ctx, cancelKeyPrefix+cr.ID, cr); err != nil {
		return nil, err
	}
	return cr, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode record %q", key)
	}
	return s.driver.SetRecord(ctx, key, data)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, found, err := s.driver.GetRecord(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "corrupt record %q", key)
	}
	return true, nil
}

func masterKey(userID int64) string {
	return fmt.Sprintf("%s%d", masterKeyPrefix, userID)
}

func slotsKey(masterID int64, batchID string) string {
	return fmt.Sprintf("%s%d/%s", slotsKeyPrefix, masterID, batchID)
}

// sortSlotBatches orders batches oldest-first. Keys are random ids, so
// the driver's key order says nothing about time.
func sortSlotBatches(batches []*SlotBatch) {
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
}
