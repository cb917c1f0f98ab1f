package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"vintedwatch/monitor-service/internal/model"
	"vintedwatch/monitor-service/internal/store"
)

// TelegramBot is the chat-platform adapter. It implements Sink for the
// engine and runs the command loop (/watch, /searches, /remove, /health).
// A successfully constructed bot is authenticated and ready to send, which
// is the readiness signal the scheduler waits for.
type TelegramBot struct {
	api      *tgbotapi.BotAPI
	registry store.SearchRegistry
	log      *zap.Logger
	started  time.Time
}

// NewTelegramBot authorises against the Telegram API.
func NewTelegramBot(token string, registry store.SearchRegistry, log *zap.Logger) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	log.Info("telegram bot authorised", zap.String("username", api.Self.UserName))
	return &TelegramBot{
		api:      api,
		registry: registry,
		log:      log.With(zap.String("component", "telegram")),
		started:  time.Now(),
	}, nil
}

var _ Sink = (*TelegramBot)(nil)

// Send delivers one notification to its destination chat. Best effort: no
// delivery confirmation exists beyond the API accepting the request.
func (b *TelegramBot) Send(ctx context.Context, n model.Notification) error {
	chatID, err := strconv.ParseInt(n.Channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid destination channel %q: %w", n.Channel, err)
	}

	text := RenderHTML(n)

	if n.Listing.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(n.Listing.ImageURL))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(photo); err == nil {
			return nil
		}
		// Fall through to a plain message when the image upload is rejected.
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Listen consumes command updates until ctx is cancelled. Run it in its own
// goroutine; it shares no state with the engine beyond the registry.
func (b *TelegramBot) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "watch":
		reply = b.handleWatch(ctx, msg)
	case "searches":
		reply = b.handleSearches(ctx)
	case "remove":
		reply = b.handleRemove(ctx, strings.TrimSpace(msg.CommandArguments()))
	case "health":
		reply = b.handleHealth(ctx)
	default:
		reply = "Commands: /watch <maxPrice> <keyword…> [brand=…] [category=…] [size=…], /searches, /remove <id>, /health"
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	if _, err := b.api.Send(out); err != nil {
		b.log.Warn("command reply failed", zap.Error(err))
	}
}

// handleWatch parses "/watch 40 nike hoodie brand=Nike size=M" into a
// SearchDefinition bound to the issuing chat.
func (b *TelegramBot) handleWatch(ctx context.Context, msg *tgbotapi.Message) string {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		return "Usage: /watch <maxPrice> <keyword…> [brand=…] [category=…] [size=…]"
	}

	maxPrice, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Sprintf("Max price %q is not a number", fields[0])
	}

	def := model.SearchDefinition{
		MaxPrice: maxPrice,
		Channel:  strconv.FormatInt(msg.Chat.ID, 10),
	}

	var keywords []string
	for _, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "brand="):
			def.Brand = strings.TrimPrefix(f, "brand=")
		case strings.HasPrefix(f, "category="):
			def.Category = strings.TrimPrefix(f, "category=")
		case strings.HasPrefix(f, "size="):
			def.Size = strings.TrimPrefix(f, "size=")
		default:
			keywords = append(keywords, f)
		}
	}
	def.Keyword = strings.Join(keywords, " ")

	created, err := b.registry.Add(ctx, def)
	if err != nil {
		return fmt.Sprintf("❌ Could not create search: %v", err)
	}

	b.log.Info("search created",
		zap.String("search_id", created.ID),
		zap.String("keyword", created.Keyword),
		zap.Float64("max_price", created.MaxPrice))
	return fmt.Sprintf("✅ Watching %q up to £%.2f (id %s)", created.SearchText(), created.MaxPrice, shortID(created.ID))
}

func (b *TelegramBot) handleSearches(ctx context.Context) string {
	defs, err := b.registry.List(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Could not list searches: %v", err)
	}
	if len(defs) == 0 {
		return "No searches active"
	}

	var sb strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&sb, "%s — %q up to £%.2f\n", shortID(d.ID), d.SearchText(), d.MaxPrice)
	}
	return sb.String()
}

func (b *TelegramBot) handleRemove(ctx context.Context, idPrefix string) string {
	if idPrefix == "" {
		return "Usage: /remove <id>"
	}

	defs, err := b.registry.List(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Could not resolve search: %v", err)
	}

	var matched string
	for _, d := range defs {
		if strings.HasPrefix(d.ID, idPrefix) {
			if matched != "" {
				return fmt.Sprintf("Id %q is ambiguous, give more characters", idPrefix)
			}
			matched = d.ID
		}
	}
	if matched == "" {
		return fmt.Sprintf("No search with id %q", idPrefix)
	}

	if err := b.registry.Remove(ctx, matched); err != nil {
		return fmt.Sprintf("❌ Could not remove search: %v", err)
	}
	return fmt.Sprintf("🗑 Removed search %s", shortID(matched))
}

func (b *TelegramBot) handleHealth(ctx context.Context) string {
	defs, err := b.registry.List(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ Degraded — registry unavailable: %v", err)
	}
	return fmt.Sprintf("OK — %d active search(es), up %s", len(defs), time.Since(b.started).Round(time.Second))
}

// shortID keeps chat output readable; the full UUID still works everywhere.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
