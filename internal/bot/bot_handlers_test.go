package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"tgwatch/internal/cache"
	"tgwatch/internal/config"
	"tgwatch/internal/delivery"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/model"
	"tgwatch/internal/scheduler"
	"tgwatch/internal/storage"
)

const techPage = `<html><head><meta property="og:title" content="Tech Daily"></head><body>
<div class="tgme_channel_info_header_title"><span>Tech  Daily</span></div>
<div class="tgme_widget_message" data-post="tech/1"><div class="tgme_widget_message_text">hello</div></div>
</body></html>`

// --- mocks ---

type sentMsg struct {
	ChatID   int64
	Text     string
	Keyboard bool
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	acks    int
	sendErr error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		if m.sendErr != nil {
			return tgbotapi.Message{}, m.sendErr
		}
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Keyboard: msg.ReplyMarkup != nil})
	case tgbotapi.CallbackConfig:
		m.acks++
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockProber struct {
	pages map[model.ChannelID]string
	err   error
	calls []model.ChannelID
}

func (m *mockProber) FetchFresh(_ context.Context, id model.ChannelID) (string, error) {
	m.calls = append(m.calls, id)
	if m.err != nil {
		return "", m.err
	}
	page, ok := m.pages[id]
	if !ok {
		return "", fetcher.ErrNotFound
	}
	return page, nil
}

type mockChecker struct {
	report scheduler.Report
	err    error
	subs   []int64
}

func (m *mockChecker) Check(_ context.Context, subscriberID int64) (scheduler.Report, error) {
	m.subs = append(m.subs, subscriberID)
	r := m.report
	r.SubscriberID = subscriberID
	return r, m.err
}

type staticRequests fetcher.RequestSnapshot

func (s staticRequests) Snapshot() fetcher.RequestSnapshot { return fetcher.RequestSnapshot(s) }

type staticQueue delivery.Stats

func (s staticQueue) Stats() delivery.Stats { return delivery.Stats(s) }

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *storage.SQLite, *mockProber) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &mockAPI{}
	prober := &mockProber{pages: map[model.ChannelID]string{"tech": techPage}}
	b := &Bot{
		api:     api,
		store:   store,
		cfg:     &config.Config{DefaultKeywords: []string{"ai"}},
		prober:  prober,
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store, prober
}

func seedChannels(t *testing.T, store *storage.SQLite, chatID int64, channels ...model.ChannelID) {
	t.Helper()
	for _, ch := range channels {
		if _, err := store.AddChannel(context.Background(), chatID, ch); err != nil {
			t.Fatalf("seed channel: %v", err)
		}
	}
}

func seedRules(t *testing.T, store *storage.SQLite, chatID int64, rules model.RuleSet) {
	t.Helper()
	if err := store.SetRules(context.Background(), chatID, rules); err != nil {
		t.Fatalf("seed rules: %v", err)
	}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func makeMsg(cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7, UserName: "alice"},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to tgwatch")
}

func TestHandleHelp(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/add")
	requireContains(t, api.lastText(), "/keywords")
	requireContains(t, api.lastText(), "/files")
}

func TestHandleAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("empty args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /add")
	})

	t.Run("invalid name", func(t *testing.T) {
		b, api, _, prober := newTestBot(t)
		b.handleAdd(ctx, 100, "not-a-channel")
		requireContains(t, api.lastText(), "Invalid channel")
		if diff := cmp.Diff(0, len(prober.calls)); diff != "" {
			t.Errorf("fresh fetch calls (-want +got):\n%s", diff)
		}
	})

	t.Run("channel does not exist", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		b.handleAdd(ctx, 100, "@missing")
		requireContains(t, api.lastText(), "Cannot add @missing: channel does not exist")

		channels, _ := store.ListChannels(ctx, 100)
		if diff := cmp.Diff(0, len(channels)); diff != "" {
			t.Errorf("channel count (-want +got):\n%s", diff)
		}
	})

	t.Run("private channel", func(t *testing.T) {
		b, api, _, prober := newTestBot(t)
		prober.err = fetcher.ErrForbidden
		b.handleAdd(ctx, 100, "secret")
		requireContains(t, api.lastText(), "private or restricted")
	})

	t.Run("success uses channel title", func(t *testing.T) {
		b, api, store, prober := newTestBot(t)
		b.handleAdd(ctx, 100, "https://t.me/s/Tech/")
		requireContains(t, api.lastText(), "Channel added: @tech (Tech Daily)")

		if diff := cmp.Diff([]model.ChannelID{"tech"}, prober.calls); diff != "" {
			t.Errorf("fresh fetch calls (-want +got):\n%s", diff)
		}
		channels, _ := store.ListChannels(ctx, 100)
		if diff := cmp.Diff([]model.ChannelID{"tech"}, channels); diff != "" {
			t.Errorf("channels (-want +got):\n%s", diff)
		}
	})

	t.Run("already added", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.handleAdd(ctx, 100, "@tech")
		requireContains(t, api.lastText(), "already in your list")
	})
}

func TestHandleRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("no args sends menu", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech", "news")
		b.handleRemove(ctx, 100, "")
		last := api.last()
		requireContains(t, last.Text, "Which channel")
		if !last.Keyboard {
			t.Error("expected inline keyboard")
		}
	})

	t.Run("no args without channels", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "")
		requireContains(t, api.lastText(), "not watching any channels")
	})

	t.Run("bad args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "a b")
		requireContains(t, api.lastText(), "Usage: /remove")
	})

	t.Run("not in list", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleRemove(ctx, 100, "@tech")
		requireContains(t, api.lastText(), "not in your list")
	})

	t.Run("other subscriber untouched", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 200, "tech")
		b.handleRemove(ctx, 100, "tech")
		requireContains(t, api.lastText(), "not in your list")

		channels, _ := store.ListChannels(ctx, 200)
		if diff := cmp.Diff([]model.ChannelID{"tech"}, channels); diff != "" {
			t.Errorf("channels (-want +got):\n%s", diff)
		}
	})

	t.Run("success", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech", "news")
		b.handleRemove(ctx, 100, "@Tech")
		requireContains(t, api.lastText(), "Channel @tech removed")

		channels, _ := store.ListChannels(ctx, 100)
		if diff := cmp.Diff([]model.ChannelID{"news"}, channels); diff != "" {
			t.Errorf("channels (-want +got):\n%s", diff)
		}
	})
}

func TestHandleChannels(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleChannels(ctx, 100)
		requireContains(t, api.lastText(), "not watching any channels")
	})

	t.Run("ordered list with buttons", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech", "news")
		b.handleChannels(ctx, 100)
		last := api.last()
		requireContains(t, last.Text, "1. @tech\n2. @news")
		if !last.Keyboard {
			t.Error("expected inline keyboard")
		}
	})
}

func TestHandleKeywords(t *testing.T) {
	ctx := context.Background()

	t.Run("show defaults", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleKeywords(ctx, 100, "")
		requireContains(t, api.lastText(), "using defaults (ai)")
	})

	t.Run("invalid", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleKeywords(ctx, 100, "$video")
		requireContains(t, api.lastText(), "Invalid keywords")
	})

	t.Run("replace keeps negatives and file switch", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{
			Positive: []model.KeywordRule{{Term: "old", Weight: 1}, {Term: "$file", Weight: 1}},
			Negative: []string{"ads"},
		})

		b.handleKeywords(ctx, 100, "AI:2, startup")
		requireContains(t, api.lastText(), "Keywords updated")

		got, err := store.GetRules(ctx, 100)
		if err != nil {
			t.Fatalf("get rules: %v", err)
		}
		want := model.RuleSet{
			Positive: []model.KeywordRule{{Term: "ai", Weight: 2}, {Term: "startup", Weight: 1}, {Term: "$file", Weight: 1}},
			Negative: []string{"ads"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("rules (-want +got):\n%s", diff)
		}
	})

	t.Run("explicit sentinel not duplicated", func(t *testing.T) {
		b, _, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{Positive: []model.KeywordRule{{Term: "$file", Weight: 1}}})

		b.handleKeywords(ctx, 100, "$file, go")

		got, _ := store.GetRules(ctx, 100)
		if diff := cmp.Diff([]string{"$file", "go"}, got.Terms()); diff != "" {
			t.Errorf("terms (-want +got):\n%s", diff)
		}
	})

	t.Run("clear", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{Positive: []model.KeywordRule{{Term: "go", Weight: 1}}})

		b.handleKeywords(ctx, 100, "clear")
		requireContains(t, api.lastText(), "using defaults")

		got, _ := store.GetRules(ctx, 100)
		if diff := cmp.Diff(0, len(got.Positive)); diff != "" {
			t.Errorf("positive count (-want +got):\n%s", diff)
		}
	})
}

func TestHandleNegative(t *testing.T) {
	ctx := context.Background()

	t.Run("replace keeps positives", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{
			Positive: []model.KeywordRule{{Term: "ai", Weight: 2}},
			Negative: []string{"old"},
		})

		b.handleNegative(ctx, 100, "war, Ads")
		requireContains(t, api.lastText(), "Negative: war, ads")

		got, _ := store.GetRules(ctx, 100)
		want := model.RuleSet{
			Positive: []model.KeywordRule{{Term: "ai", Weight: 2}},
			Negative: []string{"war", "ads"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("rules (-want +got):\n%s", diff)
		}
	})

	t.Run("sentinel rejected", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleNegative(ctx, 100, "$file")
		requireContains(t, api.lastText(), "Invalid negative keywords")
	})

	t.Run("clear", func(t *testing.T) {
		b, _, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{Negative: []string{"war"}})
		b.handleNegative(ctx, 100, "CLEAR")

		got, _ := store.GetRules(ctx, 100)
		if diff := cmp.Diff(0, len(got.Negative)); diff != "" {
			t.Errorf("negative count (-want +got):\n%s", diff)
		}
	})
}

func TestHandleFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleFiles(ctx, 100, "sometimes")
		requireContains(t, api.lastText(), "Usage: /files")
	})

	t.Run("on then off", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedRules(t, store, 100, model.RuleSet{Positive: []model.KeywordRule{{Term: "ai", Weight: 2}}})

		b.handleFiles(ctx, 100, "on")
		requireContains(t, api.lastText(), "will be forwarded")
		b.handleFiles(ctx, 100, "on")

		got, _ := store.GetRules(ctx, 100)
		if diff := cmp.Diff([]string{"ai", "$file"}, got.Terms()); diff != "" {
			t.Errorf("terms after on (-want +got):\n%s", diff)
		}

		b.handleFiles(ctx, 100, "off")
		got, _ = store.GetRules(ctx, 100)
		if diff := cmp.Diff([]string{"ai"}, got.Terms()); diff != "" {
			t.Errorf("terms after off (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("no checker", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCheck(ctx, 100)
		requireContains(t, api.lastText(), "not available")
	})

	t.Run("no channels", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		checker := &mockChecker{}
		b.SetChecker(checker)
		b.handleCheck(ctx, 100)
		requireContains(t, api.lastText(), "not watching any channels")
		if diff := cmp.Diff(0, len(checker.subs)); diff != "" {
			t.Errorf("check calls (-want +got):\n%s", diff)
		}
	})

	t.Run("report", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech", "gone")
		checker := &mockChecker{report: scheduler.Report{
			ChannelsTotal:   2,
			ChannelsChecked: 1,
			Messages:        3,
			Relevant:        1,
			Enqueued:        1,
			Failures:        []scheduler.ChannelFailure{{Channel: "gone", Err: fetcher.ErrNotFound}},
		}}
		b.SetChecker(checker)

		b.handleCheck(ctx, 100)
		texts := api.allTexts()
		if diff := cmp.Diff(2, len(texts)); diff != "" {
			t.Fatalf("reply count (-want +got):\n%s", diff)
		}
		requireContains(t, texts[0], "Checking 2 channel(s)")
		requireContains(t, texts[1], "Queued 1 new post(s)")
		requireContains(t, texts[1], "@gone: channel does not exist")
		if diff := cmp.Diff([]int64{100}, checker.subs); diff != "" {
			t.Errorf("check calls (-want +got):\n%s", diff)
		}
	})

	t.Run("failure", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.SetChecker(&mockChecker{err: context.Canceled})
		b.handleCheck(ctx, 100)
		requireContains(t, api.lastText(), "Check failed")
	})
}

func TestHandleHistory(t *testing.T) {
	ctx := context.Background()

	b, api, store, _ := newTestBot(t)
	b.handleHistory(ctx, 100)
	requireContains(t, api.lastText(), "No checks yet")

	rec := model.CheckRecord{
		SubscriberID:    100,
		ChannelsTotal:   2,
		ChannelsChecked: 2,
		Relevant:        1,
		Enqueued:        1,
		CheckedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.RecordCheck(ctx, rec); err != nil {
		t.Fatalf("record check: %v", err)
	}
	b.handleHistory(ctx, 100)
	requireContains(t, api.lastText(), "2026-03-01 10:00 UTC  2/2 channels, 1 relevant, 1 queued")
}

func TestHandleStats(t *testing.T) {
	ctx := context.Background()

	b, api, store, _ := newTestBot(t)
	seedChannels(t, store, 100, "tech")
	seedRules(t, store, 100, model.RuleSet{
		Positive: []model.KeywordRule{{Term: "ai", Weight: 1}},
		Negative: []string{"war"},
	})
	c := cache.New(time.Minute, 10)
	c.Put("tech", "page")
	c.Get("tech")
	b.SetRuntime(staticRequests{Success: 3}, c, staticQueue{Pending: 2})

	b.handleStats(ctx, 100)
	reply := api.lastText()
	requireContains(t, reply, "Channels: 1")
	requireContains(t, reply, "Keywords: 1 (+1 negative)")
	requireContains(t, reply, "Requests: 3 ok")
	requireContains(t, reply, "Cache: 1 pages, hit rate 100%")
	requireContains(t, reply, "Queue: 2 pending")
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	item := delivery.Item{
		SubscriberID: 100,
		Message:      model.Message{ChannelID: "tech", Text: "ai news", URL: "https://t.me/tech/1"},
		Verdict:      model.Verdict{Relevant: true, Score: 2, Matched: []model.MatchedTerm{{Term: "ai"}}},
	}

	t.Run("delivers to subscriber chat", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		if err := b.Send(ctx, item); err != nil {
			t.Fatalf("send: %v", err)
		}
		last := api.last()
		if diff := cmp.Diff(int64(100), last.ChatID); diff != "" {
			t.Errorf("chat id (-want +got):\n%s", diff)
		}
		requireContains(t, last.Text, "ai news")
	})

	t.Run("api error is returned", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		api.sendErr = errors.New("blocked by user")
		if err := b.Send(ctx, item); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("cancelled while waiting for limiter", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
		if err := b.Send(ctx, item); err != nil {
			t.Fatalf("first send: %v", err)
		}

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := b.Send(cctx, item); err == nil {
			t.Fatal("expected error, got nil")
		}
		if diff := cmp.Diff(1, len(api.allTexts())); diff != "" {
			t.Errorf("sent count (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches known commands", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)

		cmds := []struct {
			cmd      string
			contains string
		}{
			{"start", "Welcome"},
			{"help", "/add"},
			{"channels", "not watching"},
			{"keywords", "Keywords:"},
			{"history", "No checks yet"},
			{"stats", "Your stats"},
			{"unknown_cmd", "Unknown command"},
		}

		for _, tc := range cmds {
			api.reset()
			b.handleCommand(ctx, makeMsg(tc.cmd, ""))
			requireContains(t, api.lastText(), tc.contains)
		}
	})

	t.Run("registers subscriber", func(t *testing.T) {
		b, _, store, _ := newTestBot(t)
		b.handleCommand(ctx, makeMsg("start", ""))

		sub, err := store.GetSubscriber(ctx, 100)
		if err != nil {
			t.Fatalf("get subscriber: %v", err)
		}
		if diff := cmp.Diff("alice", sub.Username); diff != "" {
			t.Errorf("username (-want +got):\n%s", diff)
		}
	})

	t.Run("add then list", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCommand(ctx, makeMsg("add", "@tech"))
		requireContains(t, api.lastText(), "Channel added")
		b.handleCommand(ctx, makeMsg("channels", ""))
		requireContains(t, api.lastText(), "1. @tech")
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	callback := func(id, data string) *tgbotapi.CallbackQuery {
		return &tgbotapi.CallbackQuery{
			ID:      id,
			Data:    data,
			From:    &tgbotapi.User{ID: 7},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
	}

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, callback("cb1", "nocolon"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(1, api.acks); diff != "" {
			t.Errorf("callback acks (-want +got):\n%s", diff)
		}
	})

	t.Run("remove_confirm asks first", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.handleCallback(ctx, callback("cb2", "remove_confirm:tech"))

		last := api.last()
		requireContains(t, last.Text, "Stop watching @tech?")
		if !last.Keyboard {
			t.Error("expected inline keyboard")
		}
		channels, _ := store.ListChannels(ctx, 100)
		if diff := cmp.Diff(1, len(channels)); diff != "" {
			t.Errorf("channel count (-want +got):\n%s", diff)
		}
	})

	t.Run("remove_confirm without channel shows menu", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.handleCallback(ctx, callback("cb3", "remove_confirm:"))
		requireContains(t, api.lastText(), "Which channel")
	})

	t.Run("remove callback", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.handleCallback(ctx, callback("cb4", "remove:tech"))
		requireContains(t, api.lastText(), "Channel @tech removed")
	})

	t.Run("noop", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, callback("cb5", "noop:"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("check callback", func(t *testing.T) {
		b, api, store, _ := newTestBot(t)
		seedChannels(t, store, 100, "tech")
		b.SetChecker(&mockChecker{report: scheduler.Report{ChannelsTotal: 1, ChannelsChecked: 1}})
		b.handleCallback(ctx, callback("cb6", "check:"))
		requireContains(t, api.lastText(), "Nothing new")
	})
}
