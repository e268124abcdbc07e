package llmcomplete

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codalotl/aidoc/internal/q/health"

	"google.golang.org/genai"
)

// gemini talks to Google's Gemini API through the genai SDK.
type gemini struct {
	client *genai.Client
	model  string
	health.Ctx
}

var _ Completer = (*gemini)(nil)

func newGemini(ctx context.Context, opts Options) (*gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llmcomplete: creating gemini client: %w", err)
	}
	return &gemini{
		client: client,
		model:  opts.Model,
		Ctx:    health.NewCtx(opts.Logger).With("provider", string(ProviderIDGemini)),
	}, nil
}

func (g *gemini) Complete(ctx context.Context, c Completion) (Reply, error) {
	model := c.Model
	if model == "" {
		model = g.model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.Temperature)),
	}
	if c.System != "" {
		config.SystemInstruction = genai.NewContentFromText(c.System, genai.RoleUser)
	}
	if c.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.MaxTokens)
	}
	if c.TopP > 0 {
		config.TopP = genai.Ptr(float32(c.TopP))
	}
	if c.JSON {
		config.ResponseMIMEType = "application/json"
	}

	g.Debug("llmcomplete.request", "model", model, "system_bytes", len(c.System), "user_bytes", len(c.User))

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(c.User), config)
	if err != nil {
		return Reply{}, normalizeGeminiErr(err)
	}

	reply := Reply{
		Text:      strings.TrimSpace(resp.Text()),
		Model:     model,
		RequestID: resp.ResponseID,
	}
	if resp.ModelVersion != "" {
		reply.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		reply.StopReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		reply.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		reply.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	g.Debug("llmcomplete.reply", "model", reply.Model, "stop", reply.StopReason, "in", reply.InputTokens, "out", reply.OutputTokens, "text", health.Truncate(reply.Text, 2000))
	if reply.Text == "" {
		return reply, ErrEmptyReply
	}
	return reply, nil
}

func normalizeGeminiErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newStatusError(apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return newStatusError(apiErrPtr.Code, apiErrPtr.Message, err)
	}
	if IsTransient(err) {
		return makeRetryable(err)
	}
	return err
}
