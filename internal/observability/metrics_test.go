package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordReceived()
	m.RecordReceived()
	m.RecordProcessed()
	m.RecordFailed()
	m.RecordHandoffTimeout()
	m.RecordDegraded()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.EventsReceived)
	assert.Equal(t, int64(1), snap.EventsProcessed)
	assert.Equal(t, int64(1), snap.EventsFailed)
	assert.Equal(t, int64(1), snap.HandoffTimeouts)
	assert.Equal(t, int64(1), snap.DegradedEntries)
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordReceived()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), m.Snapshot().EventsReceived)
}
