package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"expense-bot/internal/model"
	"expense-bot/internal/pending"
	"expense-bot/internal/service"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg, user)
	case "help":
		return b.sendText(msg.Chat.ID, textHelp)
	case "categories":
		return b.handleCategories(ctx, msg.Chat.ID, user)
	case "add_category":
		return b.handleAddCategory(ctx, msg, user)
	case "expenses":
		text, err := b.svc.Stats.RecentList(ctx, user.ID)
		if err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, text)
	case "stats":
		text, err := b.svc.Stats.Summary(ctx, user.ID, b.now())
		if err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, text)
	default:
		return b.sendText(msg.Chat.ID, textUnknownCommand)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	cats, err := b.svc.Categories.List(ctx, user.ID)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "prieten"
	}
	return b.sendText(msg.Chat.ID, formatWelcome(name, cats))
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64, user *model.User) error {
	cats, err := b.svc.Categories.List(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return b.sendText(chatID, textNoCategories)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range cats {
		if c.IsDefault {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑️ %s %s", c.Icon, c.Name), fmt.Sprintf("%s%d", cbDeleteCategory, c.ID)),
		))
	}
	text := formatCategories(cats)
	if len(rows) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleAddCategory(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	name := strings.TrimSpace(msg.CommandArguments())
	c, err := b.svc.Categories.AddNamed(ctx, user.ID, name)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return b.sendText(msg.Chat.ID, textAddCategoryUsage)
	case errors.Is(err, service.ErrCategoryExists):
		return b.sendText(msg.Chat.ID, fmt.Sprintf("❌ Categoria <b>%s</b> există deja!", escape(name)))
	case err != nil:
		return err
	}
	b.Print(ctx, "category created", "user_id", user.ID, "category_id", c.ID, "name", c.Name)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ <b>Categorie creată!</b>\n\n%s <b>%s</b>\n\nO poți folosi de acum pentru cheltuielile tale.", c.Icon, escape(c.Name)))
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	_ = b.sendText(msg.Chat.ID, textProcessing)
	in, err := b.svc.Intake.FromText(ctx, user.ID, msg.Text)
	if err != nil {
		return b.reportIntakeError(ctx, msg.Chat.ID, "text", err)
	}
	return b.askConfirmation(ctx, msg.Chat.ID, user.ID, in)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	_ = b.sendText(msg.Chat.ID, textProcessingPhoto)
	// Telegram lists sizes ascending; the last one is the original.
	photo := msg.Photo[len(msg.Photo)-1]
	data, err := b.download(ctx, photo.FileID)
	if err != nil {
		return b.reportIntakeError(ctx, msg.Chat.ID, "photo", err)
	}
	in, err := b.svc.Intake.FromPhoto(ctx, user.ID, data, "image/jpeg")
	if err != nil {
		return b.reportIntakeError(ctx, msg.Chat.ID, "photo", err)
	}
	return b.askConfirmation(ctx, msg.Chat.ID, user.ID, in)
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	_ = b.sendText(msg.Chat.ID, textProcessingVoice)
	data, err := b.download(ctx, msg.Voice.FileID)
	if err != nil {
		return b.reportIntakeError(ctx, msg.Chat.ID, "voice", err)
	}
	in, err := b.svc.Intake.FromVoice(ctx, user.ID, data, "voice.ogg")
	if err != nil {
		return b.reportIntakeError(ctx, msg.Chat.ID, "voice", err)
	}
	return b.askConfirmation(ctx, msg.Chat.ID, user.ID, in)
}

// askConfirmation parks the draft and shows it with DA/NU buttons.
func (b *Bot) askConfirmation(ctx context.Context, chatID int64, userID uint, in *service.Intake) error {
	id, err := b.pending.Put(pending.Entry{
		UserID:    userID,
		ChatID:    chatID,
		Source:    in.Source,
		Draft:     in.Draft,
		CreatedAt: b.now(),
	})
	if err != nil {
		return fmt.Errorf("store pending draft: %w", err)
	}
	b.Print(ctx, "draft awaiting confirmation", "user_id", userID, "confirmation_id", id, "items", len(in.Draft.Items))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirm+id),
		tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancel+id),
	))
	return b.sendWithReplyMarkup(chatID, formatPreview(in.Draft, b.now()), keyboard)
}

func (b *Bot) reportIntakeError(ctx context.Context, chatID int64, kind string, err error) error {
	b.Error(ctx, "intake failed", "kind", kind, "err", err)
	return b.sendText(chatID, formatIntakeError(err))
}
