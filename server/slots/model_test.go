package slots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *ModelExtractor {
	return NewModelExtractor(ModelConfig{APIKey: "test-key"}, testZone)
}

func TestParseResponse_PlainArray(t *testing.T) {
	m := testModel()

	content := `[{"date": "2025-08-03", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse", "duration_minutes": 60}]`
	batch, err := m.parseResponse(content, testRef())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	slot := batch[0]
	assert.Equal(t, "2025-08-03", slot.DateString())
	assert.Equal(t, "14:00", slot.StartTime)
	assert.Equal(t, "15:00", slot.EndTime)
	assert.Equal(t, "Bathhouse", slot.Location)
	assert.Equal(t, 60, slot.DurationMinutes)
	assert.Equal(t, SourceModel, slot.Source)
}

func TestParseResponse_MarkdownFences(t *testing.T) {
	m := testModel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "json fence",
			content: "```json\n" +
				`[{"date": "2025-08-03", "start_time": "10:00", "end_time": "11:00", "location": "Glamping"}]` +
				"\n```",
		},
		{
			name: "bare fence",
			content: "```\n" +
				`[{"date": "2025-08-03", "start_time": "10:00", "end_time": "11:00", "location": "Glamping"}]` +
				"\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := m.parseResponse(tt.content, testRef())
			require.NoError(t, err)
			require.Len(t, batch, 1)
			assert.Equal(t, "Glamping", batch[0].Location)
			// Duration derived from the times when the field is absent.
			assert.Equal(t, 60, batch[0].DurationMinutes)
		})
	}
}

func TestParseResponse_DropsInvalidSlots(t *testing.T) {
	m := testModel()

	content := `[
		{"date": "2025-08-03", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse"},
		{"date": "2025-07-01", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse"},
		{"date": "2025-08-03", "start_time": "16:00", "end_time": "15:00", "location": "Bathhouse"},
		{"date": "2025-08-03", "start_time": "14:00", "end_time": "15:00"},
		{"date": "not-a-date", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse"}
	]`
	batch, err := m.parseResponse(content, testRef())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "2025-08-03", batch[0].DateString())
}

func TestParseResponse_Errors(t *testing.T) {
	m := testModel()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I could not find any slots in that text."},
		{"empty array", "[]"},
		{"all slots invalid", `[{"date": "2025-01-01", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.parseResponse(tt.content, testRef())
			assert.Error(t, err)
		})
	}
}

func TestBuildPrompt_EmbedsReferenceDates(t *testing.T) {
	m := testModel()

	prompt := m.buildPrompt("завтра в 16", testRef())
	assert.Contains(t, prompt, "2025-08-02")
	assert.Contains(t, prompt, "Saturday")
	assert.Contains(t, prompt, "2025-08-03")
	assert.Contains(t, prompt, "2025-08-04")
	assert.Contains(t, prompt, "завтра в 16")

	// A different reference changes the embedded dates.
	later := testRef().AddDate(0, 1, 0)
	prompt = m.buildPrompt("завтра в 16", later)
	assert.Contains(t, prompt, "2025-09-02")
	assert.NotContains(t, prompt, "2025-08-02")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `[1]`, stripFences("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFences("```\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFences("[1]"))
	assert.Equal(t, `[1]`, stripFences("  [1]  "))
}

func TestModelExtract_UnreachableEndpoint(t *testing.T) {
	m := NewModelExtractor(ModelConfig{
		APIKey:  "test-key",
		BaseURL: "http://127.0.0.1:1/v1",
		Timeout: 200 * time.Millisecond,
	}, testZone)

	_, err := m.Extract(context.Background(), "завтра в 16", testRef())
	assert.Error(t, err)
}
