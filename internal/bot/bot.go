package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"tgwatch/internal/cache"
	"tgwatch/internal/config"
	"tgwatch/internal/delivery"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/model"
	"tgwatch/internal/scheduler"
	"tgwatch/internal/storage"
)

// Outgoing notification rate, in messages per second.
const (
	sendRate  = 20
	sendBurst = 1
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Prober downloads a channel page without consulting the cache.
type Prober interface {
	FetchFresh(ctx context.Context, id model.ChannelID) (string, error)
}

// Checker runs an on-demand check cycle for a subscriber.
type Checker interface {
	Check(ctx context.Context, subscriberID int64) (scheduler.Report, error)
}

// RequestCounter reports fetcher request outcomes.
type RequestCounter interface {
	Snapshot() fetcher.RequestSnapshot
}

// CacheStats reports page cache counters.
type CacheStats interface {
	Stats() cache.Stats
}

// QueueStats reports delivery queue counters.
type QueueStats interface {
	Stats() delivery.Stats
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	prober  Prober
	checker Checker
	limiter *rate.Limiter
	log     *slog.Logger

	requests RequestCounter
	cache    CacheStats
	queue    QueueStats
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, prober Prober, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		prober:  prober,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		log:     log,
	}, nil
}

// SetChecker sets the check cycle used by /check.
// The checker delivers through the queue, which may in turn use this bot.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// SetRuntime sets the counters reported by /stats. Any of them may be nil.
func (b *Bot) SetRuntime(r RequestCounter, c CacheStats, q QueueStats) {
	b.requests = r
	b.cache = c
	b.queue = q
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
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Send delivers a notification to its subscriber's chat.
// It waits for the shared send limiter and fails if ctx expires first.
func (b *Bot) Send(ctx context.Context, item delivery.Item) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}
	msg := tgbotapi.NewMessage(item.SubscriberID, FormatNotification(item))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
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

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	var username string
	if msg.From != nil {
		username = msg.From.UserName
	}
	if _, err := b.store.EnsureSubscriber(ctx, chatID, username); err != nil {
		b.log.Error("ensure subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, "Storage is unavailable, try again later.")
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case cmdRemove:
		b.handleRemove(ctx, chatID, args)
	case "channels":
		b.handleChannels(ctx, chatID)
	case "keywords":
		b.handleKeywords(ctx, chatID, args)
	case "negative":
		b.handleNegative(ctx, chatID, args)
	case "files":
		b.handleFiles(ctx, chatID, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
