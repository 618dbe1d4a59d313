package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
	"expense-bot/internal/pending"
	"expense-bot/internal/service"
)

const (
	cbConfirm        = "confirm:"
	cbCancel         = "cancel:"
	cbDeleteCategory = "delcat:"
	cbMigrate        = "migrate:"
	cbKeepCategory   = "keepcat:"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.Error(ctx, "callback ack", "err", err)
	}

	chatID := cb.Message.Chat.ID
	if !b.allowed(cb.Message.Chat, cb.From) {
		metrics.CallbacksHandled.WithLabelValues("denied").Inc()
		return b.sendText(chatID, textAccessDenied)
	}
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbConfirm):
		metrics.CallbacksHandled.WithLabelValues("confirm").Inc()
		return b.confirmDraft(ctx, chatID, user, strings.TrimPrefix(data, cbConfirm))
	case strings.HasPrefix(data, cbCancel):
		metrics.CallbacksHandled.WithLabelValues("cancel").Inc()
		b.pending.Delete(strings.TrimPrefix(data, cbCancel))
		return b.sendText(chatID, textDraftCancelled)
	case strings.HasPrefix(data, cbDeleteCategory):
		metrics.CallbacksHandled.WithLabelValues("delete_category").Inc()
		id, err := parseID(strings.TrimPrefix(data, cbDeleteCategory))
		if err != nil {
			return nil
		}
		return b.deleteCategory(ctx, chatID, user, id)
	case strings.HasPrefix(data, cbMigrate):
		metrics.CallbacksHandled.WithLabelValues("migrate").Inc()
		from, to, ok := strings.Cut(strings.TrimPrefix(data, cbMigrate), ":")
		if !ok {
			return b.sendText(chatID, textCallbackError)
		}
		fromID, err1 := parseID(from)
		toID, err2 := parseID(to)
		if err1 != nil || err2 != nil {
			return b.sendText(chatID, textCallbackError)
		}
		return b.migrateCategory(ctx, chatID, user, fromID, toID)
	case strings.HasPrefix(data, cbKeepCategory):
		metrics.CallbacksHandled.WithLabelValues("keep_category").Inc()
		return b.sendText(chatID, textDeleteCancelled)
	}
	metrics.CallbacksHandled.WithLabelValues("unknown").Inc()
	return nil
}

func (b *Bot) confirmDraft(ctx context.Context, chatID int64, user *model.User, id string) error {
	entry, err := b.pending.Take(id, user.ID)
	switch {
	case errors.Is(err, pending.ErrNotOwner):
		return b.sendText(chatID, textNotYourDraft)
	case errors.Is(err, pending.ErrExpired):
		return b.sendText(chatID, textConfirmationExpired)
	case err != nil:
		return err
	}

	m, err := b.svc.Expenses.Materialize(ctx, entry.UserID, entry.Draft, entry.Source)
	if err != nil {
		b.Error(ctx, "materialize draft", "confirmation_id", id, "err", err)
		if rerr := b.pending.Restore(id, entry); rerr != nil {
			b.Error(ctx, "restore pending draft", "confirmation_id", id, "err", rerr)
		}
		return b.sendText(chatID, formatSaveError(err))
	}
	b.Print(ctx, "expenses created", "user_id", user.ID, "count", len(m.Expenses), "source", entry.Source)

	return b.sendText(chatID, formatSaved(m))
}

func (b *Bot) deleteCategory(ctx context.Context, chatID int64, user *model.User, id uint) error {
	plan, err := b.svc.Categories.PlanDeletion(ctx, user.ID, id)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendText(chatID, textCategoryNotFound)
	}
	if err != nil {
		return err
	}
	c := plan.Category

	if plan.Count == 0 && !c.IsDefault {
		if err := b.svc.Categories.Delete(ctx, user.ID, id, nil); err != nil {
			return err
		}
		return b.sendText(chatID, fmt.Sprintf("✅ Categoria <b>%s %s</b> a fost ștearsă!", c.Icon, escape(c.Name)))
	}

	if len(plan.Alternatives) == 0 {
		return b.sendText(chatID, fmt.Sprintf(
			"❌ Nu poți șterge categoria <b>%s</b> pentru că are %d cheltuieli și nu există alte categorii!\n\nCreează o categorie nouă mai întâi.",
			escape(c.Name), plan.Count))
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plan.Alternatives)+1)
	for _, alt := range plan.Alternatives {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %s", alt.Icon, alt.Name), fmt.Sprintf("%s%d:%d", cbMigrate, c.ID, alt.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Anulează", fmt.Sprintf("%s%d", cbKeepCategory, c.ID)),
	))
	text := fmt.Sprintf("⚠️ <b>Categoria %s %s are %d cheltuieli!</b>\n\nAlege categoria în care vrei să muți cheltuielile:", c.Icon, escape(c.Name), plan.Count)
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) migrateCategory(ctx context.Context, chatID int64, user *model.User, fromID, toID uint) error {
	from, err := b.svc.Categories.Get(ctx, user.ID, fromID)
	if err != nil {
		return b.sendText(chatID, textCategoryNotFound)
	}
	to, err := b.svc.Categories.Get(ctx, user.ID, toID)
	if err != nil {
		return b.sendText(chatID, textCategoryNotFound)
	}

	n, err := b.svc.Categories.Migrate(ctx, user.ID, fromID, toID)
	if err != nil {
		b.Error(ctx, "migrate category", "from", fromID, "to", toID, "err", err)
		return b.sendText(chatID, textCallbackError)
	}
	b.Print(ctx, "category migrated", "user_id", user.ID, "from", fromID, "to", toID, "expenses", n)

	return b.sendText(chatID, fmt.Sprintf(
		"✅ <b>Migrare finalizată!</b>\n\n%d cheltuieli mutate din:\n%s <b>%s</b>\n\nÎn:\n%s <b>%s</b>\n\nCategoria veche a fost ștearsă.",
		n, from.Icon, escape(from.Name), to.Icon, escape(to.Name)))
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
