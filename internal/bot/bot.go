// Package bot is the Telegram front of the booking form.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peran/internal/booking"
	"peran/internal/events"
	"peran/internal/model"
	"peran/internal/portal"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Portal is everything the bot needs from the customer portal.
type Portal interface {
	booking.Gateway
	booking.Tracker
	UpdateBooking(ctx context.Context, id string, patch portal.BookingPatch) (model.CreateResult, error)
	CancelBooking(ctx context.Context, id string) (model.CreateResult, error)
	SendContactMessage(ctx context.Context, msg portal.ContactMessage) (string, error)
	TrackPageView(ctx context.Context, sessionID, page, referrer string)
}

// Options configure the bot.
type Options struct {
	Location       *time.Location
	Managers       []int64
	SessionTimeout time.Duration
	FormID         string
	Now            func() time.Time
	Events         *events.EventBus
	Debug          bool
}

// Bot runs one booking form per chat.
type Bot struct {
	portal   Portal
	tg       telegramClient
	sessions *booking.SessionStore
	managers map[int64]struct{}
	loc      *time.Location
	now      func() time.Time
	events   *events.EventBus
	logger   *zerolog.Logger
}

// New connects to Telegram with token.
func New(token string, p Portal, opts Options, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = opts.Debug
	return newBot(&realTelegramClient{api: api}, p, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, p Portal, opts Options, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, p, opts, logger)
}

func newBot(tg telegramClient, p Portal, opts Options, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if p == nil {
		return nil, fmt.Errorf("portal is nil")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.NewEventBus()
	}
	if opts.FormID == "" {
		opts.FormID = "telegram-booking"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	mgrs := make(map[int64]struct{})
	for _, id := range opts.Managers {
		mgrs[id] = struct{}{}
	}

	b := &Bot{
		portal:   p,
		tg:       tg,
		managers: mgrs,
		loc:      opts.Location,
		now:      opts.Now,
		events:   opts.Events,
		logger:   logger,
	}
	b.sessions = booking.NewSessionStore(opts.SessionTimeout, func() *booking.Controller {
		return booking.NewController(p, booking.Options{
			Location: opts.Location,
			Tracker:  p,
			Logger:   logger,
			Now:      opts.Now,
			FormID:   opts.FormID,
		})
	})
	b.events.Subscribe(events.TypeBookingCreated, b.notifyManagers)
	b.events.Subscribe(events.TypeBookingCancelled, b.notifyManagers)
	b.events.Subscribe(events.TypeBookingMoved, b.notifyManagers)
	return b, nil
}

// Sessions exposes the per-chat forms, for cleanup and settings refresh.
func (b *Bot) Sessions() *booking.SessionStore {
	return b.sessions
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("booking bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

// RunMaintenance drops idle sessions and refreshes the settings of the live
// ones until ctx is done.
func (b *Bot) RunMaintenance(ctx context.Context, settingsEvery time.Duration) {
	if settingsEvery <= 0 {
		settingsEvery = booking.SettingsRefreshInterval
	}
	ticker := time.NewTicker(settingsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.sessions.Cleanup(); n > 0 {
				b.logger.Debug().Int("removed", n).Msg("expired booking sessions")
			}
			b.sessions.Each(func(s *booking.Session) {
				s.Controller.RefreshSettings(ctx)
			})
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	// Commands interrupt any active flow.
	if strings.HasPrefix(text, "/") {
		cmd, args := splitCommand(text)
		switch cmd {
		case "/start":
			b.handleStart(ctx, chatID, args)
			return
		case "/book", "/boka":
			b.startBooking(ctx, chatID)
			return
		case "/contact", "/kontakt":
			b.handleContact(ctx, msg, args)
			return
		case "/help", "/hjalp":
			b.reply(chatID, helpText)
			return
		case "/cancel", "/avbryt":
			b.sessions.Delete(chatID)
			b.reply(chatID, "Bokningen avbröts.")
			return
		}
		if b.isManager(msg.From.ID) && b.handleManagerCommand(ctx, msg, cmd, args) {
			return
		}
		b.reply(chatID, "Okänt kommando. "+helpText)
		return
	}

	session := b.sessions.Get(chatID)
	if session == nil || session.Awaiting() == booking.FieldNone {
		b.reply(chatID, "Skriv /boka för att boka bord.")
		return
	}
	session.Touch()
	b.handleFieldInput(ctx, chatID, session, text)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	data := cq.Data
	_ = b.answerCallback(cq.ID)
	if data == "noop" {
		return
	}
	chatID := cq.Message.Chat.ID
	msgID := cq.Message.MessageID

	if data == "book" {
		b.startBooking(ctx, chatID)
		return
	}
	session := b.sessions.Get(chatID)
	if session == nil {
		b.reply(chatID, "Sessionen har gått ut. Börja om med /boka")
		return
	}
	session.Touch()

	prefix, value, _ := strings.Cut(data, ":")
	switch prefix {
	case "svc":
		b.handleService(ctx, chatID, session, value)
	case "svcpage":
		b.sendServices(chatID, session, atoi(value))
	case "prov":
		b.handleProvider(ctx, chatID, session, value)
	case "provpage":
		b.sendProviders(chatID, session, atoi(value))
	case "nav":
		b.handleNav(chatID, msgID, session, value)
	case "date":
		b.handleDate(ctx, chatID, session, value)
	case "slot":
		b.handleSlot(ctx, chatID, session, value)
	case "guests":
		b.handleGuests(ctx, chatID, session, value)
	case "prod":
		b.handleProduct(chatID, msgID, session, value)
	case "skip":
		b.handleFieldInput(ctx, chatID, session, skipInput)
	case "back":
		b.handleBack(ctx, chatID, session, value)
	case "confirm":
		b.handleConfirm(ctx, chatID, session)
	case "cancel":
		b.sessions.Delete(chatID)
		b.reply(chatID, "Bokningen avbröts.")
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64, args []string) {
	session := b.sessions.Reset(chatID)
	referrer := ""
	if len(args) > 0 {
		referrer = args[0]
	}
	b.portal.TrackPageView(ctx, session.Controller.SessionID(), "/boka", referrer)

	msg := tgbotapi.NewMessage(chatID, "Välkommen till Perán! Här kan du boka bord.\n\n"+helpText)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📅 Boka bord", "book")),
	)
	b.send(msg)
}

func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message, args []string) {
	text := strings.Join(args, " ")
	if text == "" {
		b.reply(msg.Chat.ID, "Skriv ditt meddelande efter kommandot, t.ex. /kontakt Har ni glutenfria alternativ?")
		return
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if _, err := b.portal.SendContactMessage(ctx, portal.ContactMessage{
		Name:    name,
		Subject: "Telegram",
		Message: text,
	}); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("contact message")
		b.reply(msg.Chat.ID, "Kunde inte skicka meddelandet. Försök igen senare.")
		return
	}
	b.reply(msg.Chat.ID, "Tack! Vi återkommer så snart vi kan.")
}

func (b *Bot) isManager(userID int64) bool {
	_, ok := b.managers[userID]
	return ok
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Warn().Err(err).Msg("telegram send")
	}
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

const helpText = "Kommandon: /boka för att boka bord, /kontakt <meddelande> för att skriva till oss, /avbryt för att avbryta."

func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	// Commands in groups arrive as /book@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}
