package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
)

const providerGroq = "groq"

// GroqConfig configures the OpenAI-compatible Groq endpoints.
type GroqConfig struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string
	SpeechModel string
}

// Groq talks to the Groq chat completion and transcription endpoints.
type Groq struct {
	cfg     GroqConfig
	http    *http.Client
	backoff func() retry.Backoff
}

func NewGroq(cfg GroqConfig) *Groq {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Groq{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
		backoff: func() retry.Backoff {
			// three attempts in total
			return retry.WithMaxRetries(2, retry.WithCappedDuration(10*time.Second, retry.NewExponential(2*time.Second)))
		},
	}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("groq api error: %d %s", e.Code, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *Groq) ParsePhoto(ctx context.Context, image []byte, mimeType string) (model.Draft, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	req := chatRequest{
		Model: g.cfg.VisionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: photoPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   1000,
	}

	content, err := g.chat(ctx, "photo", req)
	if err != nil {
		return model.Draft{}, errors.Wrap(err, "parse photo")
	}
	return decodeDraft(content)
}

// ParseVoice transcribes the audio in Romanian and parses the transcript
// against the default category list.
func (g *Groq) ParseVoice(ctx context.Context, audio []byte, filename string) (model.Draft, error) {
	text, err := g.Transcribe(ctx, audio, filename)
	if err != nil {
		return model.Draft{}, err
	}
	return g.ParseText(ctx, text, nil)
}

func (g *Groq) ParseText(ctx context.Context, text string, categories []string) (model.Draft, error) {
	req := chatRequest{
		Model: g.cfg.TextModel,
		Messages: []chatMessage{
			{Role: "system", Content: textSystemPrompt(categories)},
			{Role: "user", Content: text},
		},
		Temperature:    0.2,
		MaxTokens:      800,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	content, err := g.chat(ctx, "text", req)
	if err != nil {
		return model.Draft{}, errors.Wrap(err, "parse text")
	}
	return decodeDraft(content)
}

func (g *Groq) SuggestCategory(ctx context.Context, description string) (Suggestion, error) {
	req := chatRequest{
		Model: g.cfg.TextModel,
		Messages: []chatMessage{
			{Role: "system", Content: suggestSystemPrompt},
			{Role: "user", Content: suggestUserPrompt(description)},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	}

	content, err := g.chat(ctx, "suggest", req)
	if err != nil {
		return Suggestion{}, errors.Wrap(err, "suggest category")
	}
	return decodeSuggestion(content), nil
}

// Transcribe sends audio to the whisper endpoint.
func (g *Groq) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}

	var out struct {
		Text string `json:"text"`
	}
	err := g.do(ctx, "transcribe", func() (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(audio); err != nil {
			return nil, err
		}
		for k, v := range map[string]string{"model": g.cfg.SpeechModel, "language": "ro", "response_format": "json"} {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/audio/transcriptions", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return "", errors.Wrap(err, "transcribe")
	}
	return strings.TrimSpace(out.Text), nil
}

func (g *Groq) chat(ctx context.Context, operation string, payload chatRequest) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	var resp chatResponse
	err = g.do(ctx, operation, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from groq")
	}
	return resp.Choices[0].Message.Content, nil
}

// do sends the request built by newReq, retrying transport failures, 429 and
// 5xx answers, and decodes the JSON body into out.
func (g *Groq) do(ctx context.Context, operation string, newReq func() (*http.Request, error), out any) error {
	started := time.Now()
	defer func() {
		metrics.AIRequestDuration.WithLabelValues(providerGroq, operation).Observe(time.Since(started).Seconds())
	}()

	err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		req, err := newReq()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

		resp, err := g.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(serr)
			}
			return serr
		}
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
		return nil
	})
	if err != nil {
		metrics.AIErrors.WithLabelValues(providerGroq, operation).Inc()
		return err
	}
	return nil
}
