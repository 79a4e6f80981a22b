// Package oracle adapts the generative-AI endpoint into a typed
// fake/original classifier for medication images.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/resilience"
	"github.com/JoshuaOlubori/truemeds-v2/pkg/anthropic"
)

// Classifier produces a validated classification for a publicly resolvable
// image URL. Implementations never fail outward: infrastructure failures
// become the fixed fallback result, tagged Degraded so callers can tell the
// difference.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) model.Classification
}

const systemPrompt = `You are a pharmaceutical verification assistant. You analyze medicine images and determine whether they appear to be original or counterfeit drugs. You respond with a single JSON object and nothing else.`

const userPromptFmt = `Analyze this medicine image and determine if it appears to be an original or counterfeit drug.

Image URL: %s

Provide your analysis in the following JSON format only:
{
  "result": "fake" or "original",
  "confidence": number between 1-100,
  "drugName": "name of the drug if identifiable",
  "manufacturer": "manufacturer name if identifiable",
  "indicators": ["list of key indicators that led to this conclusion"]
}

Focus only on visual characteristics that can be determined from the image.
If you cannot determine with certainty, provide your best assessment with an appropriate confidence level.
Do not include any explanations or additional text outside the JSON structure.`

// Fallback field values returned on any failure.
const (
	fallbackConfidence = 50
	unknownField       = "Unknown"
)

var fallbackIndicators = []string{
	"Error analyzing image",
	"Please try again with a clearer image",
}

// Config tunes the adapter's timeout and circuit breaker.
type Config struct {
	Model            string
	MaxTokens        int64
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Adapter implements Classifier over an anthropic.Client with a per-call
// timeout, bounded retry and a circuit breaker in front of the API.
type Adapter struct {
	client  anthropic.Client
	cfg     Config
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewAdapter creates an oracle adapter with the given client and config.
func NewAdapter(client anthropic.Client, cfg Config) *Adapter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("oracle: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Adapter{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Classify asks the oracle for a verdict on the image at imageURL. Any
// failure — unreachable API, open circuit, missing JSON, malformed or
// incomplete payload — yields the fixed fallback verdict tagged with the
// failure reason. Confidence is always clamped into [1,100].
func (a *Adapter) Classify(ctx context.Context, imageURL string) model.Classification {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	resp, err := resilience.ExecuteVal(callCtx, a.breaker,
		func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return resilience.DoVal(ctx, a.retry,
				func(ctx context.Context) (*anthropic.MessageResponse, error) {
					return a.client.CreateMessage(ctx, anthropic.MessageRequest{
						Model:     a.cfg.Model,
						MaxTokens: a.cfg.MaxTokens,
						System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
						Messages: []anthropic.Message{
							{Role: "user", Content: fmt.Sprintf(userPromptFmt, imageURL)},
						},
					})
				})
		})
	if err != nil {
		zap.L().Error("oracle: classify call failed",
			zap.String("image_url", imageURL),
			zap.Error(err),
		)
		return Fallback(err.Error())
	}

	resp.Usage.LogCost(a.cfg.Model, "classify")

	result, err := ParseClassification(resp.Text())
	if err != nil {
		zap.L().Error("oracle: unusable response",
			zap.String("image_url", imageURL),
			zap.Error(err),
		)
		return Fallback(err.Error())
	}
	return result
}

// Fallback returns the fixed degraded-mode classification with the given
// reason attached.
func Fallback(reason string) model.Classification {
	return model.Classification{
		Verdict:    model.VerdictFake,
		Confidence: fallbackConfidence,
		Metadata: model.ScanMetadata{
			DrugName:     unknownField,
			Manufacturer: unknownField,
			Indicators:   append([]string(nil), fallbackIndicators...),
		},
		Degraded:       true,
		DegradedReason: reason,
	}
}

// ParseClassification extracts and validates the JSON verdict from the
// oracle's free-text response.
func ParseClassification(text string) (model.Classification, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return model.Classification{}, fmt.Errorf("oracle: no JSON object in response: %.120q", text)
	}

	var payload struct {
		Result       string   `json:"result"`
		Confidence   *float64 `json:"confidence"`
		DrugName     string   `json:"drugName"`
		Manufacturer string   `json:"manufacturer"`
		Indicators   []string `json:"indicators"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Classification{}, fmt.Errorf("oracle: parse response JSON: %w", err)
	}

	verdict := model.Verdict(strings.ToLower(strings.TrimSpace(payload.Result)))
	if !model.ValidVerdict(verdict) {
		return model.Classification{}, fmt.Errorf("oracle: invalid verdict %q", payload.Result)
	}
	if payload.Confidence == nil {
		return model.Classification{}, fmt.Errorf("oracle: missing confidence")
	}
	if payload.Indicators == nil {
		return model.Classification{}, fmt.Errorf("oracle: missing indicators")
	}

	return model.Classification{
		Verdict:    verdict,
		Confidence: clampConfidence(int(*payload.Confidence)),
		Metadata: model.ScanMetadata{
			DrugName:     payload.DrugName,
			Manufacturer: payload.Manufacturer,
			Indicators:   payload.Indicators,
		},
	}, nil
}

func clampConfidence(c int) int {
	if c < 1 {
		return 1
	}
	if c > 100 {
		return 100
	}
	return c
}
