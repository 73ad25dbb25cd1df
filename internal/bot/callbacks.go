package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdCheck    = "check"
	cmdRules    = "rules"
	cmdRmRule   = "rmrule"
	cmdRmSource = "rmsource"
	cmdPublish  = "publish"
	cbBroadcast = "broadcast"
	cbRmConfirm = "rmsource_confirm"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if !b.allowed(cb.From) {
		return
	}

	action, value, ok := strings.Cut(cb.Data, ":")
	if !ok || value == "" {
		return
	}
	actor := actorFor(cb.From)

	b.log.Info("callback",
		"action", action,
		"value", value,
		"chat_id", chatID,
		"actor", actor,
	)

	// Listing IDs are opaque strings.
	switch action {
	case cmdPublish:
		b.handlePublish(ctx, chatID, actor, value)
		return
	case cbBroadcast:
		b.handleBroadcast(ctx, chatID, actor, value)
		return
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}

	switch action {
	case cmdRules:
		b.handleRules(ctx, chatID, value)
	case cmdCheck:
		b.handleCheck(ctx, chatID, value)
	case cbRmConfirm:
		src, ok := b.loadSource(ctx, chatID, id)
		if !ok {
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete source #%d \"%s\"? Its rules are removed too.", id, src.Name))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("%s:%d", cmdRmSource, id)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send delete confirmation", "error", err)
		}
	case cmdRmSource:
		b.handleRmSource(ctx, chatID, actor, value)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, actor, value)
	}
}
