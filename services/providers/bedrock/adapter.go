package bedrock

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/services/providers"
)

const providerName = "bedrock"

// ModelInvoker is the subset of the Bedrock runtime client used by the adapter.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

var _ ModelInvoker = (*bedrockruntime.Client)(nil)

// Adapter implements providers.Provider on Bedrock using the Anthropic
// messages body.
type Adapter struct {
	client ModelInvoker
	config providers.ProviderConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter creates a Bedrock adapter. Unset config fields take the
// Claude 3 Sonnet defaults.
func NewAdapter(client ModelInvoker, config providers.ProviderConfig, logger *zap.Logger) *Adapter {
	return &Adapter{
		client: client,
		config: config.WithDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Invoke sends one user turn with the image block followed by the prompt.
// SDK errors are returned unchanged.
func (a *Adapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.config.MaxTokens
	}

	body, err := a.buildBody(req, maxTokens)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "ENCODE_ERROR", "failed to encode request", err)
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	start := a.now()
	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	latency := a.now().Sub(start)
	if err != nil {
		a.logger.Error("model invocation failed",
			zap.String("model", model),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, err
	}

	reply := gjson.ParseBytes(out.Body)
	text := reply.Get("content.0.text")
	if !text.Exists() {
		a.logger.Warn("model reply has no text segment",
			zap.String("model", model),
			zap.String("stop_reason", reply.Get("stop_reason").String()),
		)
		return nil, providers.ErrEmptyResponse
	}

	resp := &providers.InvokeResponse{
		Content:    text.String(),
		Model:      model,
		StopReason: reply.Get("stop_reason").String(),
		Usage: providers.Usage{
			InputTokens:  int(reply.Get("usage.input_tokens").Int()),
			OutputTokens: int(reply.Get("usage.output_tokens").Int()),
		},
		Provider: providerName,
		Latency:  latency,
	}

	a.logger.Debug("model invocation completed",
		zap.String("model", model),
		zap.String("stop_reason", resp.StopReason),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("latency", latency),
	)
	return resp, nil
}

func (a *Adapter) buildBody(req *providers.InvokeRequest, maxTokens int) ([]byte, error) {
	image, err := sjson.Set(`{"type":"image","source":{"type":"base64"}}`, "source.media_type", req.Image.MediaType)
	if err != nil {
		return nil, err
	}
	if image, err = sjson.Set(image, "source.data", req.Image.Data); err != nil {
		return nil, err
	}
	text, err := sjson.Set(`{"type":"text"}`, "text", req.Prompt)
	if err != nil {
		return nil, err
	}

	body := `{"messages":[{"role":"user","content":[]}]}`
	if body, err = sjson.Set(body, "anthropic_version", a.config.AnthropicVersion); err != nil {
		return nil, err
	}
	if body, err = sjson.Set(body, "max_tokens", maxTokens); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRaw(body, "messages.0.content.-1", image); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRaw(body, "messages.0.content.-1", text); err != nil {
		return nil, err
	}
	return []byte(body), nil
}
