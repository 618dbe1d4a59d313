package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmkteam/embedlog"

	"expense-bot/internal/ai"
	"expense-bot/internal/model"
	"expense-bot/internal/receipt"
	"expense-bot/internal/repository"
	"expense-bot/internal/storage"
)

// ReceiptParser turns a fiscal receipt portal link into a draft.
type ReceiptParser interface {
	Parse(ctx context.Context, link string) (model.Draft, error)
}

// Intake is a parsed, category-reconciled draft ready for confirmation.
type Intake struct {
	Draft      model.Draft
	Source     model.Source
	FromPortal bool
}

// IntakeService parses inbound text, photos and voice notes into drafts.
type IntakeService struct {
	embedlog.Logger
	extractor  ai.Extractor
	portal     ReceiptParser
	categories *repository.CategoryRepository
	archive    storage.Archive
	now        func() time.Time
}

func NewIntakeService(logger embedlog.Logger, extractor ai.Extractor, portal ReceiptParser, categories *repository.CategoryRepository, archive storage.Archive) *IntakeService {
	if archive == nil {
		archive = storage.NopArchive{}
	}
	return &IntakeService{
		Logger:     logger,
		extractor:  extractor,
		portal:     portal,
		categories: categories,
		archive:    archive,
		now:        time.Now,
	}
}

// FromText parses a typed expense. A receipt portal link in the text is
// fetched from the portal instead of being sent to the model.
func (s *IntakeService) FromText(ctx context.Context, userID uint, text string) (*Intake, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	known, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	if link, ok := receipt.ExtractPortalURL(text); ok && s.portal != nil {
		draft, err := s.portal.Parse(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("parse receipt: %w", err)
		}
		return s.finish(draft, model.SourceManual, true, known), nil
	}

	draft, err := s.extractor.ParseText(ctx, text, known)
	if err != nil {
		return nil, fmt.Errorf("parse text: %w", err)
	}
	return s.finish(draft, model.SourceManual, false, known), nil
}

// FromPhoto reads the fiscal QR code when the photo has one and falls back
// to the vision model otherwise.
func (s *IntakeService) FromPhoto(ctx context.Context, userID uint, image []byte, mimeType string) (*Intake, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	known, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, userID, image, mimeType, imageExt(mimeType))

	if s.portal != nil {
		if values, err := receipt.DecodeQR(image); err == nil {
			if link, ok := receipt.FindPortalLink(values); ok {
				draft, err := s.portal.Parse(ctx, link)
				if err == nil {
					return s.finish(draft, model.SourcePhoto, true, known), nil
				}
				s.Error(ctx, "receipt portal failed, using vision model", "link", link, "err", err)
			}
		}
	}

	draft, err := s.extractor.ParsePhoto(ctx, image, mimeType)
	if err != nil {
		return nil, fmt.Errorf("parse photo: %w", err)
	}
	return s.finish(draft, model.SourcePhoto, false, known), nil
}

func (s *IntakeService) FromVoice(ctx context.Context, userID uint, audio []byte, filename string) (*Intake, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrInvalidInput)
	}
	if filename == "" {
		filename = "voice.ogg"
	}
	known, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, userID, audio, "audio/ogg", filepath.Ext(filename))

	draft, err := s.extractor.ParseVoice(ctx, audio, filename)
	if err != nil {
		return nil, fmt.Errorf("parse voice: %w", err)
	}
	return s.finish(draft, model.SourceVoice, false, known), nil
}

func (s *IntakeService) finish(draft model.Draft, source model.Source, fromPortal bool, known []string) *Intake {
	ApplyCategoryMapping(&draft, known)
	return &Intake{Draft: draft, Source: source, FromPortal: fromPortal}
}

// store archives the original upload. Archive failures never block intake.
func (s *IntakeService) store(ctx context.Context, userID uint, data []byte, contentType, ext string) {
	key := storage.Key(userID, ext, s.now())
	if err := s.archive.Put(ctx, key, data, contentType); err != nil {
		s.Error(ctx, "archive upload failed", "key", key, "err", err)
	}
}

func (s *IntakeService) categoryNames(ctx context.Context, userID uint) ([]string, error) {
	cats, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return model.CategoryNames(cats), nil
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
