package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/secsift/secsift/src/config"
	"github.com/secsift/secsift/src/llmerrors"
	"github.com/secsift/secsift/src/models"
)

// Client wraps an OpenAI-compatible chat-completion endpoint (including
// Azure deployments) behind models.ModelCaller. Besides the completion text
// and usage counts it surfaces the provider's rate-limit telemetry headers,
// which the limiter depends on; when the endpoint omits them the limiter
// degrades to fixed-bucket behavior.
type Client struct {
	client  *openai.Client
	timeout time.Duration
}

func NewClient(cfg *config.ProviderConfig) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		client:  openai.NewClientWithConfig(clientCfg),
		timeout: timeout,
	}
}

func (c *Client) Call(ctx context.Context, req *models.ModelCallRequest) (*models.ModelCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Stop: req.Stop,
	}
	if !req.OmitMaxTokens && req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llmerrors.New(http.StatusOK, "", "provider returned no choices")
	}

	return &models.ModelCallResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Quota: quotaFromHeaders(resp.Header()),
	}, nil
}

// classify maps go-openai errors onto the pipeline's error taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		if code == "" && apiErr.Type == llmerrors.CodeContentFilter {
			code = llmerrors.CodeContentFilter
		}
		return llmerrors.New(apiErr.HTTPStatusCode, code, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llmerrors.New(reqErr.HTTPStatusCode, "", reqErr.Error())
	}

	return llmerrors.Network(err)
}

// quotaFromHeaders extracts the provider's remaining-quota telemetry.
// OpenAI sends duration-formatted reset hints ("1s", "6m0s"); Azure sends
// integral seconds. Both are accepted.
func quotaFromHeaders(h http.Header) models.QuotaSnapshot {
	remTok := h.Get("x-ratelimit-remaining-tokens")
	remReq := h.Get("x-ratelimit-remaining-requests")
	if remTok == "" && remReq == "" {
		return models.QuotaSnapshot{}
	}

	q := models.QuotaSnapshot{Present: true}
	if v, err := strconv.Atoi(remTok); err == nil {
		q.RemainingTokens = v
	}
	if v, err := strconv.Atoi(remReq); err == nil {
		q.RemainingRequests = v
	}
	q.ResetTokens = parseReset(h.Get("x-ratelimit-reset-tokens"))
	q.ResetRequests = parseReset(h.Get("x-ratelimit-reset-requests"))
	if q.ResetRequests == 0 {
		q.ResetRequests = parseReset(h.Get("retry-after"))
	}
	return q
}

func parseReset(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return 0
}

var _ models.ModelCaller = (*Client)(nil)

// String identifies the client in startup logs.
func (c *Client) String() string {
	return fmt.Sprintf("openai-compatible client (timeout %s)", c.timeout)
}
