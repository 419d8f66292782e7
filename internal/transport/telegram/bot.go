package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/dia/backend/internal/config"
	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/core/services"
	"github.com/dia/backend/internal/infrastructure/logger"
)

const maxMessageLength = 4000

// Sender is the part of tgbotapi.BotAPI the bot replies through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type BotConfig struct {
	Config    config.TelegramConfig
	Assistant ports.AssistantService
	Users     ports.UserService
	Tasks     ports.TaskService
	Logger    *logger.Logger
}

// Bot routes private chat messages to the assistant on behalf of the
// Telegram user who sent them.
type Bot struct {
	api          *tgbotapi.BotAPI
	sender       Sender
	assistant    ports.AssistantService
	users        ports.UserService
	tasks        ports.TaskService
	pollTimeout  int
	replyTimeout time.Duration
	logger       *logger.Logger
	wg           sync.WaitGroup
}

func NewBot(cfg BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b := newBot(api, cfg)
	b.api = api
	cfg.Logger.Infow("telegram_bot_authorized", "username", api.Self.UserName)
	return b, nil
}

func newBot(sender Sender, cfg BotConfig) *Bot {
	pollTimeout := cfg.Config.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	replyTimeout := cfg.Config.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = 3 * time.Minute
	}
	return &Bot{
		sender:       sender,
		assistant:    cfg.Assistant,
		users:        cfg.Users,
		tasks:        cfg.Tasks,
		pollTimeout:  pollTimeout,
		replyTimeout: replyTimeout,
		logger:       cfg.Logger,
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for
// in-flight replies.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Infow("telegram_bot_polling", "timeout", b.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Infow("telegram_bot_stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(context.WithoutCancel(ctx), msg)
			}(update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.replyTimeout)
	defer cancel()

	rid := uuid.New().String()
	ctx = services.WithRequestID(ctx, rid)
	log := b.logger.With("request_id", rid, "telegram_id", msg.From.ID)

	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	user, err := b.users.EnsureTelegramUser(ctx, msg.From.ID, name)
	if err != nil {
		log.Errorw("telegram_user_lookup_failed", "error", err)
		b.reply(msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}
	loc := user.Location()

	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, "Hi! Tell me what to plan, e.g. \"gym tomorrow at 7\" or \"what do I have today?\".\n/today lists today's tasks.")
		return
	case "today":
		tasks, err := b.tasks.ListTasksByDate(ctx, user.ID, time.Now().In(loc))
		if err != nil {
			log.Errorw("telegram_today_failed", "error", err)
			b.reply(msg.Chat.ID, "Could not load your tasks.")
			return
		}
		b.reply(msg.Chat.ID, formatTaskList(tasks, loc))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if len(text) > maxMessageLength {
		b.reply(msg.Chat.ID, "That message is too long.")
		return
	}

	log.Infow("telegram_assistant_request")
	result, err := b.assistant.Handle(ctx, user.ID, text)
	if err != nil {
		log.Warnw("telegram_assistant_failed", "error", err)
		b.reply(msg.Chat.ID, errorReply(err))
		return
	}
	b.reply(msg.Chat.ID, formatResult(result, loc))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warnw("telegram_send_failed", "chat_id", chatID, "error", err)
	}
}
