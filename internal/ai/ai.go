// Package ai turns receipt photos, voice notes and free text into expense
// drafts using hosted language models.
package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"expense-bot/internal/model"
)

// Extractor is implemented by every model backend.
type Extractor interface {
	ParsePhoto(ctx context.Context, image []byte, mimeType string) (model.Draft, error)
	ParseVoice(ctx context.Context, audio []byte, filename string) (model.Draft, error)
	ParseText(ctx context.Context, text string, categories []string) (model.Draft, error)
	SuggestCategory(ctx context.Context, description string) (Suggestion, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Suggestion is a proposed new category.
type Suggestion struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Palette lists the colors a suggested category may use.
var Palette = []string{
	"#F97316", "#38BDF8", "#34D399", "#FACC15",
	"#F472B6", "#60A5FA", "#A78BFA", "#FB7185",
	"#FDBA74", "#FDE047", "#10B981", "#94A3B8",
}

// FallbackSuggestion is returned when the model answer is not usable.
var FallbackSuggestion = Suggestion{Name: "Custom Category", Icon: "🏷️", Color: "#10B981"}

var ErrNoJSON = errors.New("no JSON object in model response")

// extractJSON returns the text between the first '{' and the last '}'.
// Models tend to wrap JSON in markdown fences or prose.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

func decodeDraft(content string) (model.Draft, error) {
	var d model.Draft
	raw, err := extractJSON(content)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, errors.Wrap(err, "decode draft")
	}
	return d, nil
}

// decodeSuggestion never fails: unusable answers become FallbackSuggestion and
// colors outside Palette are replaced by its first entry.
func decodeSuggestion(content string) Suggestion {
	raw, err := extractJSON(content)
	if err != nil {
		return FallbackSuggestion
	}
	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return FallbackSuggestion
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = FallbackSuggestion.Name
	}
	if strings.TrimSpace(s.Icon) == "" {
		s.Icon = FallbackSuggestion.Icon
	}
	if s.Color == "" {
		s.Color = FallbackSuggestion.Color
	}
	if !inPalette(s.Color) {
		s.Color = Palette[0]
	}
	return s
}

func inPalette(color string) bool {
	for _, c := range Palette {
		if strings.EqualFold(c, color) {
			return true
		}
	}
	return false
}
