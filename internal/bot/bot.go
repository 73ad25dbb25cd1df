// Package bot implements the admin Telegram panel: publishing and
// broadcasting listings, funnel stats and partner import sources.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fresherjobs/internal/config"
	"fresherjobs/internal/funnel"
	"fresherjobs/internal/importer"
	"fresherjobs/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SourceChecker imports a single source on demand.
type SourceChecker interface {
	CheckSource(ctx context.Context, id int64) (int, error)
}

// FunnelReader reports growth funnel metrics.
type FunnelReader interface {
	Metrics(ctx context.Context) (funnel.Metrics, error)
}

// Bot is the admin Telegram bot.
type Bot struct {
	api      telegramAPI
	store    storage.Storage
	cfg      *config.Config
	importer *importer.Importer
	funnel   FunnelReader
	checker  SourceChecker
	log      *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, im *importer.Importer, fr FunnelReader, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:      api,
		store:    store,
		cfg:      cfg,
		importer: im,
		funnel:   fr,
		log:      log,
	}, nil
}

// SetChecker wires the importer used by /check. The scheduler needs the
// bot as its sender, so it is attached after construction.
func (b *Bot) SetChecker(c SourceChecker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.allowed(update.Message.From) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) allowed(u *tgbotapi.User) bool {
	if u == nil {
		return len(b.cfg.AdminIDs) == 0
	}
	return b.cfg.IsAdmin(u.ID)
}

func actorFor(u *tgbotapi.User) string {
	if u == nil {
		return "telegram:unknown"
	}
	return fmt.Sprintf("telegram:%d", u.ID)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	actor := actorFor(msg.From)

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	case "recent":
		b.handleRecent(ctx, chatID, args)
	case "drafts":
		b.handleDrafts(ctx, chatID)
	case cmdPublish:
		b.handlePublish(ctx, chatID, actor, args)
	case "archive":
		b.handleArchive(ctx, chatID, actor, args)
	case "broadcast":
		b.handleBroadcastConfirm(ctx, chatID, args)
	case "sources":
		b.handleSources(ctx, chatID)
	case "addsource":
		b.handleAddSource(ctx, chatID, actor, args)
	case cmdRmSource:
		b.handleRmSource(ctx, chatID, actor, args)
	case "pause":
		b.handleSetActive(ctx, chatID, actor, args, false)
	case "resume":
		b.handleSetActive(ctx, chatID, actor, args, true)
	case "interval":
		b.handleInterval(ctx, chatID, actor, args)
	case cmdRules:
		b.handleRules(ctx, chatID, args)
	case "include", "exclude", "include_re", "exclude_re":
		b.handleAddRule(ctx, chatID, actor, args, cmd)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, actor, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
