package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgwatch/internal/model"
)

const (
	cmdCheck         = "check"
	cmdRemove        = "remove"
	cmdRemoveConfirm = "remove_confirm"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok {
		return
	}

	var userID int64
	var username string
	if cb.From != nil {
		userID, username = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", userID,
		"username", username,
	)

	switch action {
	case cmdCheck:
		b.handleCheck(ctx, chatID)
	case cmdRemoveConfirm:
		id := model.NormalizeChannel(arg)
		if id == "" {
			b.sendRemoveMenu(ctx, chatID)
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Stop watching @%s?", id))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, remove", cmdRemove+":"+string(id)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send remove confirmation", "error", err)
		}
	case cmdRemove:
		if arg == "" {
			return
		}
		b.handleRemove(ctx, chatID, arg)
	}
}
