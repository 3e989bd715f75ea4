package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

func acme(t *testing.T) model.Target {
	t.Helper()
	target, err := model.NewTarget("acme.com")
	require.NoError(t, err)
	return target
}

const profileJSON = "```json\n" + `{
  "company_name": "Acme Ltd",
  "description_long": "Acme builds industrial widgets for factories.",
  "short_description": "N/A",
  "industry": "Manufacturing",
  "sector": "Industrials",
  "sic_code": 28990,
  "tags": ["widgets", " Widgets ", "not found", "automation"],
  "products_services": "widgets, gears",
  "key_people": [
    {"name": "Jane Doe", "title": "CEO", "role_category": "Executive"},
    {"name": "unknown", "title": "CTO"}
  ],
  "unrelated": "ignored"
}` + "\n```"

func TestExtract(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Temperature != nil && *req.Temperature == 0 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			strings.Contains(req.Messages[0].Content, "=== INDUSTRY SEARCH ===") &&
			strings.Contains(req.Messages[0].Content, "--- SOURCE: https://acme.com/about ---")
	})).Return(textResponse(profileJSON), nil)

	ex := New(client, nil, nil, Config{})
	res, err := ex.Extract(context.Background(), Evidence{
		Target: acme(t),
		SERP:   map[string]string{"industry": "Acme is a manufacturer"},
		Fields: []string{"industry"},
		Pages:  []model.CrawledPage{{URL: "https://acme.com/about", Markdown: "About Acme"}},
	})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "Acme builds industrial widgets for factories.", rec.Value(model.FieldLongDescription))
	assert.False(t, rec.Has(model.FieldShortDescription))
	assert.Equal(t, "28990", rec.Value(model.FieldSICCode))
	assert.Equal(t, []string{"widgets", "automation"}, rec.List(model.ListTags))
	assert.Equal(t, []string{"widgets", "gears"}, rec.List(model.ListProducts))
	require.Len(t, rec.People, 1)
	assert.Equal(t, "Jane Doe", rec.People[0].Name)
	assert.Equal(t, []string{"https://acme.com/about"}, rec.Sources)
	assert.False(t, rec.ExtractedAt.IsZero())
	assert.Equal(t, int64(1000), res.Usage.InputTokens)
	client.AssertExpectations(t)
}

func TestExtract_NoEvidence(t *testing.T) {
	t.Parallel()

	ex := New(new(mockAnthropicClient), nil, nil, Config{})
	_, err := ex.Extract(context.Background(), Evidence{Target: acme(t)})
	assert.ErrorContains(t, err, "no evidence")
}

func TestExtract_ProviderFailure(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	ex := New(client, nil, nil, Config{})
	_, err := ex.Extract(context.Background(), Evidence{Target: acme(t), SERP: map[string]string{"industry": "x"}})
	require.Error(t, err)
	assert.True(t, model.IsProviderFailure(err))
}

func TestExtract_BadJSON(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not find anything."), nil)

	ex := New(client, nil, nil, Config{})
	res, err := ex.Extract(context.Background(), Evidence{Target: acme(t), SERP: map[string]string{"industry": "x"}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(200), res.Usage.OutputTokens)
}

func TestExtractField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field model.FieldName
		reply string
		value string
		list  []string
		found bool
	}{
		{"scalar", model.FieldSector, ` "Industrials" `, "Industrials", nil, true},
		{"too short", model.FieldSICCode, "62", "", nil, false},
		{"placeholder", model.FieldIndustry, "Not Found", "", nil, false},
		{"json list", model.ListTags, `["cloud", "ai", "none"]`, "", []string{"cloud", "ai"}, true},
		{"comma list", model.ListTags, "cloud, ai", "", []string{"cloud", "ai"}, true},
		{"empty list", model.ListTags, `""`, "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := new(mockAnthropicClient)
			client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
				return strings.Contains(req.Messages[0].Content, "FIELD TO EXTRACT: "+string(tt.field))
			})).Return(textResponse(tt.reply), nil)

			fv, err := New(client, nil, nil, Config{}).ExtractField(context.Background(), acme(t), tt.field, "serp", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.found, fv.Found)
			assert.Equal(t, tt.value, fv.Value)
			assert.Equal(t, tt.list, fv.List)
		})
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("Here you go: {\"a\":1} thanks"))
	assert.Equal(t, "plain", cleanJSON(" plain "))
}

func TestMissing(t *testing.T) {
	t.Parallel()

	rec := model.NewExtractionRecord(acme(t))
	rec.Fields[model.FieldLongDescription] = "Acme builds widgets."
	rec.Fields[model.FieldSector] = "IT"
	rec.Fields[model.FieldSICCode] = "62020"
	rec.Lists[model.ListTags] = []string{"widgets"}

	assert.Equal(t, []model.FieldName{
		model.FieldIndustry,
		model.FieldSector,
		model.FieldShortDescription,
		model.FieldSICText,
		model.FieldSubIndustry,
	}, Missing(rec))
}

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", clip("abc", 10))
	assert.Equal(t, "ab", clip("abcdef", 2))
	assert.Equal(t, "a", clip("aé", 2))
	assert.Equal(t, "abcdef", clip("abcdef", 0))
}
