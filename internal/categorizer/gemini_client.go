package categorizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

const (
	DefaultModel             = "gemini-2.0-flash"
	DefaultRequestsPerMinute = 10
	DefaultTimeout           = 30 * time.Second

	operationGenerate = "ai.generate"
)

type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiClient implements the AIClient interface for interacting with the Google Gemini API.
// Requests are paced by a limiter built from ai.requests_per_minute.
type GeminiClient struct {
	client   *genai.Client
	generate generateFunc
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   logging.Logger
}

// NewGeminiClient creates a client for cfg.Model authenticated with cfg.APIKey.
func NewGeminiClient(ctx context.Context, cfg config.AIConfig, logger logging.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &txerror.ConfigError{Key: "ai.api_key", Reason: "GEMINI_API_KEY is not set"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	model := client.GenerativeModel(modelName)

	c := newGeminiClient(func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp)
	}, cfg, logger)
	c.client = client
	return c, nil
}

func newGeminiClient(generate generateFunc, cfg config.AIConfig, logger logging.Logger) *GeminiClient {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiClient{
		generate: generate,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		timeout:  timeout,
		logger:   logger,
	}
}

// CategorizeBatch sends one prompt for the whole batch.
func (c *GeminiClient) CategorizeBatch(ctx context.Context, txs []models.Transaction, categories []models.Category,
	history map[string][]models.SimilarityMatch) ([]AIResult, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.generate(callCtx, BuildPrompt(txs, categories, history))
	if err != nil {
		return nil, classifyAIError(ctx, err)
	}

	results, err := ParseResponse(text)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("AI batch categorized",
		logging.F(logging.FieldProvider, "gemini"),
		logging.F(logging.FieldCount, len(results)),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return results, nil
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini API")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text in Gemini API response")
	}
	return b.String(), nil
}

// classifyAIError marks rate limiting, server errors and call timeouts as
// transient. Cancellation of the parent context is returned as is.
func classifyAIError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &txerror.TransientError{Operation: operationGenerate, Err: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return &txerror.TransientError{Operation: operationGenerate, Err: err}
		}
	}
	return fmt.Errorf("Gemini API error: %w", err)
}
