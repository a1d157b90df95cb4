package slots

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintoctopus/reserve/internal/observability"
)

// stubModel lets tests script the model tier's behaviour.
type stubModel struct {
	batch Batch
	err   error
	calls int
}

func (s *stubModel) Extract(ctx context.Context, text string, ref time.Time) (Batch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.batch, nil
}

func newTestEngine(model modelTier, metrics *observability.Metrics) *Engine {
	e := NewEngine(nil, NewFallbackExtractor(testZone), metrics)
	e.model = model
	return e
}

func TestEngine_ModelAnswerWins(t *testing.T) {
	want := Batch{{
		Date:      time.Date(2025, 8, 3, 0, 0, 0, 0, testZone),
		StartTime: "14:00", EndTime: "15:00",
		Location: "Glamping", DurationMinutes: 60,
		Source: SourceModel,
	}}
	e := newTestEngine(&stubModel{batch: want}, nil)

	got := e.Extract(context.Background(), "завтра в 14 в глэмпинге", testRef())
	assert.Equal(t, want, got)
}

func TestEngine_ModelFailureFallsThroughSilently(t *testing.T) {
	metrics := observability.NewMetrics()
	model := &stubModel{err: errors.New("connection refused")}
	e := newTestEngine(model, metrics)

	got := e.Extract(context.Background(), "tomorrow at 6 in the morning", testRef())
	require.Len(t, got, 1)
	assert.Equal(t, SourceFallback, got[0].Source)
	assert.Equal(t, "06:00", got[0].StartTime)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, int64(1), metrics.Snapshot().DegradedEntries)
}

func TestEngine_NoModelConfigured(t *testing.T) {
	e := NewEngine(nil, NewFallbackExtractor(testZone), nil)

	got := e.Extract(context.Background(), "today at 14 in the glamping area", testRef())
	require.Len(t, got, 1)
	assert.Equal(t, SourceFallback, got[0].Source)
	assert.Equal(t, "Glamping", got[0].Location)
}

func TestEngine_NeverErrorsOnGarbage(t *testing.T) {
	e := newTestEngine(&stubModel{err: errors.New("boom")}, nil)

	for _, input := range []string{"", "🙃🙃🙃", "```json garbage", "\x00\x01", "завтра"} {
		batch := e.Extract(context.Background(), input, testRef())
		assert.NotNil(t, batch, "input %q", input)
	}
}

func TestEngine_BothTiersEmptyYieldsEmptyBatch(t *testing.T) {
	e := newTestEngine(&stubModel{err: errors.New("timeout")}, nil)

	batch := e.Extract(context.Background(), "no time words at all", testRef())
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}
