package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func newTestAdapter(client anthropic.Client) *Adapter {
	return NewAdapter(client, Config{
		Model:            "claude-haiku-4-5-20251001",
		Timeout:          time.Second,
		FailureThreshold: 100,
		ResetTimeout:     time.Second,
	})
}

func TestClassify_ValidResponse(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"result":"original","confidence":88,"drugName":"Panadol","manufacturer":"GSK","indicators":["hologram intact"]}`), nil)

	result := newTestAdapter(client).Classify(context.Background(), "https://blobs/pill.jpg")

	assert.Equal(t, model.VerdictOriginal, result.Verdict)
	assert.Equal(t, 88, result.Confidence)
	assert.Equal(t, "Panadol", result.Metadata.DrugName)
	assert.Equal(t, "GSK", result.Metadata.Manufacturer)
	assert.False(t, result.Degraded)
	client.AssertExpectations(t)
}

func TestClassify_APIFailureYieldsFallback(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("api unreachable"))

	result := newTestAdapter(client).Classify(context.Background(), "https://blobs/pill.jpg")

	assert.True(t, result.Degraded)
	assert.Equal(t, model.VerdictFake, result.Verdict)
	assert.Equal(t, 50, result.Confidence)
	assert.Equal(t, "Unknown", result.Metadata.DrugName)
	assert.Equal(t, "Unknown", result.Metadata.Manufacturer)
	assert.Equal(t, []string{"Error analyzing image", "Please try again with a clearer image"}, result.Metadata.Indicators)
}

func TestClassify_ProseWithoutJSONYieldsFallback(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I cannot analyze this image, it is too blurry."), nil)

	result := newTestAdapter(client).Classify(context.Background(), "https://blobs/pill.jpg")

	assert.True(t, result.Degraded)
	assert.Equal(t, model.VerdictFake, result.Verdict)
	assert.Equal(t, 50, result.Confidence)
}

func TestClassify_SendsImageURL(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			strings.Contains(req.Messages[0].Content, "https://blobs/target.jpg")
	})).Return(textResponse(`{"result":"fake","confidence":60,"indicators":[]}`), nil)

	newTestAdapter(client).Classify(context.Background(), "https://blobs/target.jpg")
	client.AssertExpectations(t)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    model.Classification
		wantErr bool
	}{
		{
			name: "plain JSON",
			text: `{"result":"fake","confidence":72,"drugName":"Amoxil","manufacturer":"Pfizer","indicators":["blurry print"]}`,
			want: model.Classification{
				Verdict:    model.VerdictFake,
				Confidence: 72,
				Metadata: model.ScanMetadata{
					DrugName:     "Amoxil",
					Manufacturer: "Pfizer",
					Indicators:   []string{"blurry print"},
				},
			},
		},
		{
			name: "JSON wrapped in prose",
			text: `Here is my analysis: {"result":"original","confidence":90,"indicators":["sharp embossing"]} Let me know if you need more.`,
			want: model.Classification{
				Verdict:    model.VerdictOriginal,
				Confidence: 90,
				Metadata:   model.ScanMetadata{Indicators: []string{"sharp embossing"}},
			},
		},
		{
			name: "markdown fenced JSON",
			text: "```json\n{\"result\":\"fake\",\"confidence\":65,\"indicators\":[\"misaligned label\"]}\n```",
			want: model.Classification{
				Verdict:    model.VerdictFake,
				Confidence: 65,
				Metadata:   model.ScanMetadata{Indicators: []string{"misaligned label"}},
			},
		},
		{
			name: "braces inside string values",
			text: `{"result":"fake","confidence":55,"indicators":["text reads {batch 12}"]}`,
			want: model.Classification{
				Verdict:    model.VerdictFake,
				Confidence: 55,
				Metadata:   model.ScanMetadata{Indicators: []string{"text reads {batch 12}"}},
			},
		},
		{
			name: "uppercase verdict normalized",
			text: `{"result":"FAKE","confidence":80,"indicators":[]}`,
			want: model.Classification{
				Verdict:    model.VerdictFake,
				Confidence: 80,
				Metadata:   model.ScanMetadata{Indicators: []string{}},
			},
		},
		{
			name: "confidence clamped high",
			text: `{"result":"original","confidence":150,"indicators":[]}`,
			want: model.Classification{
				Verdict:    model.VerdictOriginal,
				Confidence: 100,
				Metadata:   model.ScanMetadata{Indicators: []string{}},
			},
		},
		{
			name: "confidence clamped low",
			text: `{"result":"original","confidence":-5,"indicators":[]}`,
			want: model.Classification{
				Verdict:    model.VerdictOriginal,
				Confidence: 1,
				Metadata:   model.ScanMetadata{Indicators: []string{}},
			},
		},
		{name: "no JSON at all", text: "no structured output here", wantErr: true},
		{name: "unbalanced braces", text: `{"result":"fake","confidence":70`, wantErr: true},
		{name: "unknown verdict", text: `{"result":"maybe","confidence":70,"indicators":[]}`, wantErr: true},
		{name: "missing confidence", text: `{"result":"fake","indicators":[]}`, wantErr: true},
		{name: "missing indicators", text: `{"result":"fake","confidence":70}`, wantErr: true},
		{name: "malformed JSON", text: `{"result":"fake","confidence":,"indicators":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackCarriesReason(t *testing.T) {
	result := Fallback("circuit breaker is open")

	assert.True(t, result.Degraded)
	assert.Equal(t, "circuit breaker is open", result.DegradedReason)
	assert.Equal(t, model.VerdictFake, result.Verdict)
}
