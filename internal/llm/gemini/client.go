// Package gemini implements the AI structuring capability on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/llm"
)

type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	Model       string // default gemini-2.0-flash
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// generateFunc runs one generation; swapped out in tests.
type generateFunc func(ctx context.Context, systemPrompt, text string) (*genai.GenerateContentResponse, error)

type Client struct {
	cfg      Config
	client   *genai.Client
	generate generateFunc
	logger   *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not found")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c := &Client{cfg: cfg, client: gc, logger: logger}
	c.generate = c.generateContent
	return c, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Name() string { return "gemini:" + c.cfg.Model }

func (c *Client) generateContent(ctx context.Context, systemPrompt, text string) (*genai.GenerateContentResponse, error) {
	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	model.SetMaxOutputTokens(int32(c.cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return model.GenerateContent(ctx, genai.Text(text))
}

// Structure implements llm.Structurer. Quota errors are reported as llm.ErrRateLimited.
func (c *Client) Structure(ctx context.Context, systemPrompt, documentText string) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("llm.structure.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(documentText),
	)

	resp, err := c.generate(ctx, systemPrompt, documentText)
	if err != nil {
		if isRateLimited(err) {
			err = fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		c.logger.Error("llm.structure.gemini_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	content := strings.TrimSpace(responseText(resp))
	if content == "" {
		c.logger.Error("llm.structure.no_candidates", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	c.logger.Info("llm.structure.ok",
		"req_id", rid,
		"provider", "gemini",
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return false
}
