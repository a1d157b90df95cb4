package slots

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// ModelConfig holds the model tier configuration.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ModelExtractor is the remote LLM tier. Failures of any kind (config,
// transport, timeout, malformed output) surface as errors so the
// engine can fall through to the rule-based tier.
type ModelExtractor struct {
	client *openai.Client
	config ModelConfig
	loc    *time.Location
}

// NewModelExtractor creates the model tier. The API key must be set;
// the engine only constructs this tier when one is configured.
func NewModelExtractor(cfg ModelConfig, loc *time.Location) *ModelExtractor {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &ModelExtractor{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		loc:    loc,
	}
}

// Extract asks the model for a strict JSON array of slots and validates
// every element. Invalid elements are dropped individually; a response
// with no valid element is an error, not an empty success.
func (m *ModelExtractor) Extract(ctx context.Context, text string, ref time.Time) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.config.Model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: m.buildPrompt(text, ref)},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty chat response")
	}

	batch, err := m.parseResponse(resp.Choices[0].Message.Content, ref)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// buildPrompt embeds the reference date so the model resolves relative
// words against the actual current day, never a baked-in one.
func (m *ModelExtractor) buildPrompt(text string, ref time.Time) string {
	today := ref.In(m.loc)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	var b strings.Builder
	b.WriteString("Parse the following time-slot description and return ONLY a JSON array.\n\n")
	b.WriteString("Text: \"" + text + "\"\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Today is " + today.Format("2006-01-02") + " (" + today.Weekday().String() + ").\n")
	b.WriteString("2. \"Tomorrow\" / \"завтра\" is " + tomorrow.Format("2006-01-02") + ".\n")
	b.WriteString("3. \"Day after tomorrow\" / \"послезавтра\" is " + dayAfter.Format("2006-01-02") + ".\n")
	b.WriteString("4. A weekday name means its nearest future occurrence.\n\n")
	b.WriteString("Response format, an array of JSON objects:\n")
	b.WriteString(`[{"date": "2006-01-02", "start_time": "14:00", "end_time": "15:00", "location": "Bathhouse", "duration_minutes": 60}]` + "\n\n")
	b.WriteString("If the text gives a range (\"с 14 до 18\") and a slot duration (\"по часу\"), emit one object per slot. ")
	b.WriteString("Honour any break between slots. ")
	b.WriteString("If no location is named, use \"Bathhouse\" for every slot.\n\n")
	b.WriteString("Return ONLY the JSON array, no extra text.")
	return b.String()
}

type rawSlot struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Location        string `json:"location"`
	DurationMinutes int    `json:"duration_minutes"`
}

// parseResponse strips markdown fences, decodes the array and validates
// each slot: required fields, well-formed date and times, start before
// end, and not on a day before the reference.
func (m *ModelExtractor) parseResponse(content string, ref time.Time) (Batch, error) {
	stripped := stripFences(content)

	var raw []rawSlot
	if err := json.Unmarshal([]byte(stripped), &raw); err != nil {
		return nil, errors.Wrap(err, "malformed model response")
	}

	batch := Batch{}
	for _, rs := range raw {
		if rs.Date == "" || rs.StartTime == "" || rs.EndTime == "" || rs.Location == "" {
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", rs.Date, m.loc)
		if err != nil {
			continue
		}
		if beforeDay(date, ref) {
			continue
		}
		minutes, ok := validateTimes(rs.StartTime, rs.EndTime)
		if !ok {
			continue
		}
		duration := rs.DurationMinutes
		if duration <= 0 {
			duration = minutes
		}
		batch = append(batch, SlotCandidate{
			Date:            date,
			StartTime:       rs.StartTime,
			EndTime:         rs.EndTime,
			Location:        rs.Location,
			DurationMinutes: duration,
			Source:          SourceModel,
		})
	}

	if len(batch) == 0 {
		return nil, errors.New("model response contained no valid slots")
	}
	return batch, nil
}

// stripFences removes a surrounding markdown code fence, with or
// without a "json" language tag.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
