package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgwatch/internal/extract"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/model"
)

const historyLimit = 5

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to tgwatch!

I watch public Telegram channels and forward posts that match your keywords.

Quick start:
1. /add <channel> - watch a public channel
2. /keywords ai:2, startup - set the keywords you care about
3. /check - look for new posts right now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Channels:
/add <channel> - watch a public channel (@name or t.me link)
/remove [channel] - stop watching a channel
/channels - list watched channels

Keywords:
/keywords - show keywords
/keywords <term[:weight]>, ... - replace keywords (weight 0.1-5, default 1)
/keywords clear - remove keywords and use the defaults
/negative <term>, ... - replace negative keywords
/negative clear - remove negative keywords
/files on|off - also match any post with a file

Checks:
/check - check all channels now
/history - recent checks
/stats - counters`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /add <channel>")
		return
	}
	id, err := ParseChannelArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid channel: %v", err))
		return
	}

	page, err := b.prober.FetchFresh(ctx, id)
	if err != nil {
		b.log.Warn("probe channel", "channel", id, "error", err)
		b.reply(chatID, fmt.Sprintf("Cannot add @%s: %s.", id, fetcher.Describe(err)))
		return
	}

	title := string(id)
	if info, err := extract.ParseChannelInfo(page); err == nil && info.Title != "" {
		title = info.Title
	}

	added, err := b.store.AddChannel(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save channel: %v", err))
		return
	}
	if !added {
		b.reply(chatID, fmt.Sprintf("@%s is already in your list.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Channel added: @%s (%s)", id, title))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.sendRemoveMenu(ctx, chatID)
		return
	}
	id, err := ParseChannelArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <channel>")
		return
	}

	removed, err := b.store.RemoveChannel(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error removing channel: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("@%s is not in your list.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Channel @%s removed.", id))
}

func (b *Bot) sendRemoveMenu(ctx context.Context, chatID int64) {
	channels, err := b.store.ListChannels(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(channels) == 0 {
		b.reply(chatID, noChannelsText)
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("@"+string(ch), cmdRemoveConfirm+":"+string(ch)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, "Which channel should I remove?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send remove menu", "error", err)
	}
}

func (b *Bot) handleChannels(ctx context.Context, chatID int64) {
	channels, err := b.store.ListChannels(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(channels) == 0 {
		b.reply(chatID, noChannelsText)
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatChannelList(channels))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", cmdCheck+":"),
			tgbotapi.NewInlineKeyboardButtonData("Remove...", cmdRemoveConfirm+":"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send channel list", "error", err)
	}
}

func (b *Bot) handleKeywords(ctx context.Context, chatID int64, args string) {
	rules, err := b.store.GetRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if args == "" {
		b.reply(chatID, FormatRules(rules, b.cfg.DefaultKeywords))
		return
	}

	var positive []model.KeywordRule
	if !strings.EqualFold(args, clearArg) {
		if positive, err = ParseKeywords(args); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid keywords: %v\nUsage: /keywords ai:2, startup, machine learning:1.5", err))
			return
		}
	}

	// The file switch survives a keyword replacement.
	fileRule := rules.HasFileSentinel()
	rules.Positive = nil
	for _, r := range positive {
		if r.Term == model.FileSentinel {
			fileRule = false
		}
		rules.Positive = append(rules.Positive, r)
	}
	if fileRule {
		rules.Positive = append(rules.Positive, model.KeywordRule{Term: model.FileSentinel, Weight: model.DefaultWeight})
	}

	if err := b.store.SetRules(ctx, chatID, rules); err != nil {
		b.reply(chatID, fmt.Sprintf("Error saving keywords: %v", err))
		return
	}
	b.reply(chatID, "Keywords updated.\n\n"+FormatRules(rules, b.cfg.DefaultKeywords))
}

func (b *Bot) handleNegative(ctx context.Context, chatID int64, args string) {
	rules, err := b.store.GetRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if args == "" {
		b.reply(chatID, FormatRules(rules, b.cfg.DefaultKeywords))
		return
	}

	var negative []string
	if !strings.EqualFold(args, clearArg) {
		if negative, err = ParseTerms(args); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid negative keywords: %v\nUsage: /negative ads, giveaway", err))
			return
		}
	}
	rules.Negative = negative

	if err := b.store.SetRules(ctx, chatID, rules); err != nil {
		b.reply(chatID, fmt.Sprintf("Error saving keywords: %v", err))
		return
	}
	b.reply(chatID, "Negative keywords updated.\n\n"+FormatRules(rules, b.cfg.DefaultKeywords))
}

func (b *Bot) handleFiles(ctx context.Context, chatID int64, args string) {
	on, err := ParseToggle(args)
	if err != nil {
		b.reply(chatID, "Usage: /files on|off")
		return
	}

	rules, err := b.store.GetRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	positive := make([]model.KeywordRule, 0, len(rules.Positive)+1)
	for _, r := range rules.Positive {
		if r.Term != model.FileSentinel {
			positive = append(positive, r)
		}
	}
	if on {
		positive = append(positive, model.KeywordRule{Term: model.FileSentinel, Weight: model.DefaultWeight})
	}
	rules.Positive = positive

	if err := b.store.SetRules(ctx, chatID, rules); err != nil {
		b.reply(chatID, fmt.Sprintf("Error saving keywords: %v", err))
		return
	}
	if on {
		b.reply(chatID, "Posts with files will be forwarded.")
		return
	}
	b.reply(chatID, "Posts with files are matched by keywords only.")
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	if b.checker == nil {
		b.reply(chatID, "Checks are not available right now.")
		return
	}
	channels, err := b.store.ListChannels(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(channels) == 0 {
		b.reply(chatID, noChannelsText)
		return
	}

	b.reply(chatID, fmt.Sprintf("Checking %d channel(s)...", len(channels)))
	report, err := b.checker.Check(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Check failed: %v", err))
		return
	}
	b.reply(chatID, FormatReport(report))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	checks, err := b.store.ListChecks(ctx, chatID, historyLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(checks))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.store.Stats(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	rt := Runtime{}
	if b.requests != nil {
		s := b.requests.Snapshot()
		rt.Requests = &s
	}
	if b.cache != nil {
		s := b.cache.Stats()
		rt.Cache = &s
	}
	if b.queue != nil {
		s := b.queue.Stats()
		rt.Queue = &s
	}
	b.reply(chatID, FormatStats(stats, rt))
}
