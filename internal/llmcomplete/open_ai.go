package llmcomplete

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/codalotl/aidoc/internal/q/health"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// openAI talks to any OpenAI-compatible chat/completions endpoint.
type openAI struct {
	client   openai.Client
	provider Provider
	model    string
	health.Ctx
}

var _ Completer = (*openAI)(nil)
var _ ModelLister = (*openAI)(nil)

func newOpenAI(p Provider, opts Options) *openAI {
	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/") + "/"),
	}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	} else {
		// Local servers ignore the key, but the SDK insists on sending one.
		reqOpts = append(reqOpts, option.WithAPIKey("none"))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	for k, v := range p.ExtraBody {
		reqOpts = append(reqOpts, option.WithJSONSet(k, v))
	}

	return &openAI{
		client:   openai.NewClient(reqOpts...),
		provider: p,
		model:    opts.Model,
		Ctx:      health.NewCtx(opts.Logger).With("provider", string(p.ID)),
	}
}

func (o *openAI) Complete(ctx context.Context, c Completion) (Reply, error) {
	model := c.Model
	if model == "" {
		model = o.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if c.System != "" {
		messages = append(messages, openai.SystemMessage(c.System))
	}
	messages = append(messages, openai.UserMessage(c.User))

	request := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(c.Temperature),
	}
	if c.MaxTokens > 0 {
		request.MaxTokens = openai.Int(int64(c.MaxTokens))
	}
	if c.TopP > 0 {
		request.TopP = openai.Float(c.TopP)
	}
	if c.JSON {
		request.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}
	}

	o.Debug("llmcomplete.request", "model", model, "system_bytes", len(c.System), "user_bytes", len(c.User))

	var httpResp *http.Response
	resp, err := o.client.Chat.Completions.New(ctx, request, option.WithResponseInto(&httpResp))
	if err != nil {
		return Reply{}, o.normalizeErr(err, httpResp)
	}
	if resp == nil {
		return Reply{}, fmt.Errorf("chat completion response is nil")
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no choices", ErrEmptyReply)
	}

	choice := resp.Choices[0]
	text := choice.Message.Content
	if text == "" {
		text = choice.Message.Refusal
	}
	reply := Reply{
		Text:         text,
		Model:        resp.Model,
		RequestID:    resp.ID,
		StopReason:   choice.FinishReason,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	o.Debug("llmcomplete.reply", "model", reply.Model, "request_id", reply.RequestID, "stop", reply.StopReason, "in", reply.InputTokens, "out", reply.OutputTokens, "text", health.Truncate(text, 2000))
	if strings.TrimSpace(text) == "" {
		return reply, ErrEmptyReply
	}
	return reply, nil
}

// ListModels returns model IDs reported by GET {base}/models.
func (o *openAI) ListModels(ctx context.Context) ([]string, error) {
	var httpResp *http.Response
	page, err := o.client.Models.List(ctx, option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, o.normalizeErr(err, httpResp)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// normalizeErr converts SDK errors to StatusError. Context errors and network errors pass through unchanged; network errors are marked retryable.
func (o *openAI) normalizeErr(err error, httpResp *http.Response) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newStatusError(apiErr.StatusCode, apiErr.Message, err)
	}
	if httpResp != nil && httpResp.StatusCode >= 400 {
		return newStatusError(httpResp.StatusCode, http.StatusText(httpResp.StatusCode), err)
	}
	if IsTransient(err) {
		return makeRetryable(err)
	}
	return err
}
