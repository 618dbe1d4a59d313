// Package bot is the Telegram front-end: it turns messages and button presses
// into intake, confirmation and category management calls.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vmkteam/embedlog"

	"expense-bot/internal/config"
	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
	"expense-bot/internal/pending"
	"expense-bot/internal/service"
)

// maxDownloadSize caps photos and voice notes fetched from Telegram.
const maxDownloadSize = 20 << 20

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Services groups the domain services the bot drives.
type Services struct {
	Users      *service.UserService
	Intake     *service.IntakeService
	Expenses   *service.ExpenseService
	Categories *service.CategoryService
	Stats      *service.StatsService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	embedlog.Logger
	api     API
	cfg     config.Config
	svc     Services
	pending pending.Store
	http    *http.Client
	now     func() time.Time
}

// NewAPI authorizes against Telegram with the bot token.
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func New(api API, logger embedlog.Logger, cfg config.Config, svc Services, store pending.Store) *Bot {
	return &Bot{
		Logger:  logger,
		api:     api,
		cfg:     cfg,
		svc:     svc,
		pending: store,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// Start registers the webhook when one is configured and waits for ctx,
// otherwise it long-polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if url := b.cfg.TelegramWebhookURL; url != "" {
		wh, err := tgbotapi.NewWebhook(url)
		if err != nil {
			return fmt.Errorf("build webhook: %w", err)
		}
		if _, err := b.api.Request(wh); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		b.Print(ctx, "telegram webhook registered", "url", url)
		<-ctx.Done()
		return nil
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.Error(ctx, "delete webhook", "err", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)
	b.Print(ctx, "start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.HandleUpdate(ctx, update); err != nil {
				b.Error(ctx, "handle update", "update_id", update.UpdateID, "err", err)
			}
		}
	}
}

// HandleUpdate dispatches a single update. It is used by both polling and the
// webhook endpoint.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling update %d: %v", update.UpdateID, r)
		}
	}()
	switch {
	case update.CallbackQuery != nil:
		metrics.UpdatesHandled.WithLabelValues("callback").Inc()
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	if !b.allowed(msg.Chat, msg.From) {
		metrics.UpdatesHandled.WithLabelValues("denied").Inc()
		b.Print(ctx, "access denied", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
		return b.sendText(msg.Chat.ID, textAccessDenied)
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	switch {
	case msg.IsCommand():
		metrics.UpdatesHandled.WithLabelValues("command").Inc()
		b.Print(ctx, "command", "user_id", msg.From.ID, "command", msg.Command())
		return b.handleCommand(ctx, msg, user)
	case len(msg.Photo) > 0:
		metrics.UpdatesHandled.WithLabelValues("photo").Inc()
		return b.handlePhoto(ctx, msg, user)
	case msg.Voice != nil:
		metrics.UpdatesHandled.WithLabelValues("voice").Inc()
		return b.handleVoice(ctx, msg, user)
	case strings.TrimSpace(msg.Text) != "":
		metrics.UpdatesHandled.WithLabelValues("text").Inc()
		return b.handleText(ctx, msg, user)
	}
	metrics.UpdatesHandled.WithLabelValues("other").Inc()
	return nil
}

// SendReports sends the stats summary to every allowed Telegram user who has
// at least one expense.
func (b *Bot) SendReports(ctx context.Context) error {
	users, err := b.svc.Users.TelegramUsers(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if user.TelegramID == nil || !b.cfg.IsUserAllowed(*user.TelegramID) {
			continue
		}
		recent, err := b.svc.Expenses.Recent(ctx, user.ID, 1)
		if err != nil {
			b.Error(ctx, "load expenses for report", "user_id", user.ID, "err", err)
			continue
		}
		if len(recent) == 0 {
			continue
		}
		text, err := b.svc.Stats.Summary(ctx, user.ID, now)
		if err != nil {
			b.Error(ctx, "build report", "user_id", user.ID, "err", err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.Error(ctx, "send report", "user_id", user.ID, "err", err)
		}
	}
	return nil
}

func (b *Bot) allowed(chat *tgbotapi.Chat, from *tgbotapi.User) bool {
	return b.cfg.IsChatAllowed(chat.ID, chat.IsPrivate()) && b.cfg.IsUserAllowed(from.ID)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	return b.svc.Users.EnsureTelegramUser(ctx, from.ID, name, from.UserName)
}

// download fetches a Telegram file by id.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}
