package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroq(url string) *Groq {
	g := NewGroq(GroqConfig{
		APIKey:      "test-key",
		BaseURL:     url,
		TextModel:   "text-model",
		VisionModel: "vision-model",
		SpeechModel: "whisper",
	})
	g.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return g
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	}))
}

func TestGroqParseText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(t, w, `{"amount": "45,50", "currency": "MDL", "vendor": "Nr1", "category": "Mâncare & Restaurante",
			"items": [{"name": "Lapte", "qty": 2, "price": "10.5"}], "confidence": 0.9}`)
	}))
	defer srv.Close()

	d, err := newTestGroq(srv.URL).ParseText(context.Background(), "am cumparat lapte", []string{"A", "B"})
	require.NoError(t, err)

	amount, ok := d.Amount.Float()
	require.True(t, ok)
	assert.Equal(t, 45.5, amount)
	assert.Equal(t, "Nr1", d.Vendor)
	require.Len(t, d.Items, 1)
	price, _ := d.Items[0].Price.Float()
	assert.Equal(t, 10.5, price)

	assert.Equal(t, "text-model", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "A, B")
}

func TestGroqRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		chatReply(t, w, `{"amount": 1}`)
	}))
	defer srv.Close()

	_, err := newTestGroq(srv.URL).ParseText(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGroqGivesUpAfterThreeAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestGroq(srv.URL).ParseText(context.Background(), "x", nil)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGroqDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestGroq(srv.URL).ParseText(context.Background(), "x", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "401")
}

func TestGroqParsePhotoSendsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "data:image/png;base64,")
		assert.Contains(t, string(body), `"vision-model"`)
		chatReply(t, w, "Here you go:\n```json\n{\"vendor\": \"Kaufland\", \"amount\": 12}\n```")
	}))
	defer srv.Close()

	d, err := newTestGroq(srv.URL).ParsePhoto(context.Background(), []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Kaufland", d.Vendor)
}

func TestGroqParseVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/transcriptions":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "whisper", r.FormValue("model"))
			assert.Equal(t, "ro", r.FormValue("language"))
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, []byte("OggS"), data)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"text": " taxi 80 lei "}`))
		case "/chat/completions":
			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "taxi 80 lei", req.Messages[1].Content)
			assert.Contains(t, req.Messages[0].Content, defaultCategoryList)
			chatReply(t, w, `{"amount": 80, "category": "Transport"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	d, err := newTestGroq(srv.URL).ParseVoice(context.Background(), []byte("OggS"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "Transport", d.Category)
}

func TestGroqSuggestCategory(t *testing.T) {
	tests := []struct {
		reply string
		want  Suggestion
	}{
		{`{"name": "Călătorii", "icon": "✈️", "color": "#38BDF8"}`, Suggestion{"Călătorii", "✈️", "#38BDF8"}},
		{`{"name": "Sport", "icon": "⚽", "color": "#123456"}`, Suggestion{"Sport", "⚽", Palette[0]}},
		{`not json at all`, FallbackSuggestion},
		{`{"name": ""}`, Suggestion{"Custom Category", "🏷️", "#10B981"}},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chatReply(t, w, tt.reply)
		}))
		got, err := newTestGroq(srv.URL).SuggestCategory(context.Background(), "travel")
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.reply)
	}
}

func TestExtractJSON(t *testing.T) {
	_, err := extractJSON("no braces")
	assert.ErrorIs(t, err, ErrNoJSON)

	got, err := extractJSON("prefix {\"a\": {\"b\": 1}} suffix")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

func TestAnthropicParseText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"vendor\": \"Linella\", \"amount\": 99.9}"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 10}
		}`))
	}))
	defer srv.Close()

	a := NewAnthropic("key", "claude-test", stubTranscriber{text: "linella 99.9"}, option.WithBaseURL(srv.URL))
	d, err := a.ParseVoice(context.Background(), []byte("audio"), "v.ogg")
	require.NoError(t, err)
	assert.Equal(t, "Linella", d.Vendor)
	assert.Equal(t, "claude-test", body["model"])
	assert.NotEmpty(t, body["system"])
}

func TestAnthropicVoiceWithoutTranscriber(t *testing.T) {
	a := NewAnthropic("key", "claude-test", nil)
	_, err := a.ParseVoice(context.Background(), []byte("audio"), "v.ogg")
	assert.Error(t, err)
}
