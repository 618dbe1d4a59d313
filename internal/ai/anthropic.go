package ai

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
)

const providerAnthropic = "anthropic"

// Anthropic extracts drafts with Claude. Claude does not take audio, so voice
// notes are transcribed by the configured Transcriber first.
type Anthropic struct {
	client      anthropic.Client
	model       string
	transcriber Transcriber
}

// NewAnthropic builds a client. Extra options are appended after the API key,
// which lets tests point the client at a local server.
func NewAnthropic(apiKey, modelName string, transcriber Transcriber, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(60 * time.Second),
	}, opts...)
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       modelName,
		transcriber: transcriber,
	}
}

func (a *Anthropic) ParsePhoto(ctx context.Context, image []byte, mimeType string) (model.Draft, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	content, err := a.complete(ctx, "photo", "", anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(photoPrompt),
	))
	if err != nil {
		return model.Draft{}, errors.Wrap(err, "parse photo")
	}
	return decodeDraft(content)
}

func (a *Anthropic) ParseVoice(ctx context.Context, audio []byte, filename string) (model.Draft, error) {
	if a.transcriber == nil {
		return model.Draft{}, errors.New("voice input requires a transcriber")
	}
	text, err := a.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return model.Draft{}, err
	}
	return a.ParseText(ctx, text, nil)
}

func (a *Anthropic) ParseText(ctx context.Context, text string, categories []string) (model.Draft, error) {
	content, err := a.complete(ctx, "text", textSystemPrompt(categories),
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	if err != nil {
		return model.Draft{}, errors.Wrap(err, "parse text")
	}
	return decodeDraft(content)
}

func (a *Anthropic) SuggestCategory(ctx context.Context, description string) (Suggestion, error) {
	content, err := a.complete(ctx, "suggest", suggestSystemPrompt,
		anthropic.NewUserMessage(anthropic.NewTextBlock(suggestUserPrompt(description))))
	if err != nil {
		return Suggestion{}, errors.Wrap(err, "suggest category")
	}
	return decodeSuggestion(content), nil
}

func (a *Anthropic) complete(ctx context.Context, operation, system string, msg anthropic.MessageParam) (string, error) {
	started := time.Now()
	defer func() {
		metrics.AIRequestDuration.WithLabelValues(providerAnthropic, operation).Observe(time.Since(started).Seconds())
	}()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2048,
		Messages:  []anthropic.MessageParam{msg},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		metrics.AIErrors.WithLabelValues(providerAnthropic, operation).Inc()
		return "", err
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		metrics.AIErrors.WithLabelValues(providerAnthropic, operation).Inc()
		return "", errors.New("empty response from claude")
	}
	return sb.String(), nil
}
