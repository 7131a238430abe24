package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"peran/internal/calendar"
	"peran/internal/events"
	"peran/internal/export"
	"peran/internal/metrics"
	"peran/internal/model"
	"peran/internal/portal"
)

const managerHelp = "Personalkommandon: /idag, /export [ÅÅÅÅ-MM-DD], /avboka <id>, /flytta <id> <ÅÅÅÅ-MM-DD> <TT:MM> [minuter]"

// handleManagerCommand runs a staff command and reports whether cmd was one.
func (b *Bot) handleManagerCommand(ctx context.Context, msg *tgbotapi.Message, cmd string, args []string) bool {
	chatID := msg.Chat.ID
	switch cmd {
	case "/today", "/idag":
		b.sendDigest(ctx, chatID, b.now())
	case "/export":
		b.handleExport(ctx, chatID, args)
	case "/cancelbooking", "/avboka":
		b.handleCancelBooking(ctx, msg, args)
	case "/move", "/flytta":
		b.handleMove(ctx, msg, args)
	case "/staff", "/personal":
		b.reply(chatID, managerHelp)
	default:
		return false
	}
	return true
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) {
	day := b.now().In(b.loc)
	if len(args) > 0 {
		parsed, err := time.ParseInLocation(model.DateLayout, args[0], b.loc)
		if err != nil {
			b.reply(chatID, "Ange datum som ÅÅÅÅ-MM-DD.")
			return
		}
		day = parsed
	}
	from, to := dayBounds(day, b.loc)
	bookings := b.portal.ListBookings(ctx, from, to.Add(-time.Millisecond), "")
	services := b.portal.ListServices(ctx, false)

	var buf bytes.Buffer
	if err := export.Reservations(&buf, from, bookings, services, b.loc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("export reservations")
		b.reply(chatID, "Exporten misslyckades.")
		return
	}
	key := from.Format(model.DateLayout)
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "bokningar-" + key + ".xlsx", Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("%d bokningar %s", len(bookings), key)
	b.send(doc)
	metrics.IncManagerDecision("export")
}

func (b *Bot) handleCancelBooking(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	if len(args) != 1 {
		b.reply(chatID, "Användning: /avboka <id>")
		return
	}
	id := args[0]
	res, err := b.portal.CancelBooking(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("booking_id", id).Msg("cancel booking")
		b.reply(chatID, portal.MsgCancelError)
		return
	}
	if !res.Success {
		b.reply(chatID, res.Message)
		return
	}
	metrics.IncBookingCancelled()
	metrics.IncManagerDecision("cancel")

	p := events.BookingPayload{BookingID: id, Actor: msg.From.ID}
	if bk := res.Booking; bk != nil {
		p.CustomerName, p.Start, p.End, p.PartySize = bk.CustomerName, bk.Start, bk.End, bk.PartySize
	}
	b.publish(ctx, events.TypeBookingCancelled, p)
	b.reply(chatID, "Bokning "+id+" är avbokad.")
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	if len(args) < 3 {
		b.reply(chatID, "Användning: /flytta <id> <ÅÅÅÅ-MM-DD> <TT:MM> [minuter]")
		return
	}
	id := args[0]
	start, err := time.ParseInLocation(model.DateLayout+" 15:04", args[1]+" "+args[2], b.loc)
	if err != nil {
		b.reply(chatID, "Ogiltig tid. Ange datum som ÅÅÅÅ-MM-DD och tid som TT:MM.")
		return
	}
	minutes := 0
	if len(args) > 3 {
		minutes, err = strconv.Atoi(args[3])
		if err != nil || minutes <= 0 {
			b.reply(chatID, "Ogiltig längd i minuter.")
			return
		}
	}
	if minutes == 0 {
		var first *model.Service
		if services := b.portal.ListServices(ctx, true); len(services) > 0 {
			first = &services[0]
		}
		minutes = first.Minutes()
	}
	end := start.Add(time.Duration(minutes) * time.Minute)

	res, err := b.portal.UpdateBooking(ctx, id, portal.BookingPatch{Start: &start, End: &end})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("booking_id", id).Msg("move booking")
		b.reply(chatID, portal.MsgUpdateError)
		return
	}
	if !res.Success {
		b.reply(chatID, res.Message)
		return
	}
	metrics.IncManagerDecision("move")

	p := events.BookingPayload{BookingID: id, Start: start, End: end, Actor: msg.From.ID}
	if bk := res.Booking; bk != nil {
		p.CustomerName, p.PartySize = bk.CustomerName, bk.PartySize
	}
	b.publish(ctx, events.TypeBookingMoved, p)
	b.reply(chatID, fmt.Sprintf("Bokning %s flyttad till %s kl %s.", id, calendar.DayTitle(start), start.Format("15:04")))
}

// notifyManagers tells every manager except the one who acted.
func (b *Bot) notifyManagers(e events.Event) error {
	p, err := e.Booking()
	if err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	text := managerNotice(e.Type, p, b.loc)
	var errs []error
	for id := range b.managers {
		if id == p.Actor {
			continue
		}
		if _, err := b.tg.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("notify %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func managerNotice(typ string, p events.BookingPayload, loc *time.Location) string {
	start := p.Start.In(loc)
	when := calendar.DayTitle(start) + " kl " + start.Format("15:04")
	switch typ {
	case events.TypeBookingCreated:
		text := fmt.Sprintf("🆕 Ny bokning: %s, %s", p.CustomerName, when)
		if p.PartySize > 0 {
			text += fmt.Sprintf(", %d gäster", p.PartySize)
		}
		if p.RequiresPayment {
			text += " (väntar på betalning)"
		}
		if p.BookingID != "" {
			text += "\nID: " + p.BookingID
		}
		return text
	case events.TypeBookingCancelled:
		if p.Start.IsZero() {
			return "❌ Bokning " + p.BookingID + " avbokad"
		}
		return fmt.Sprintf("❌ Bokning %s avbokad (%s, %s)", p.BookingID, p.CustomerName, when)
	case events.TypeBookingMoved:
		return fmt.Sprintf("🔁 Bokning %s flyttad till %s", p.BookingID, when)
	}
	return typ + " " + p.BookingID
}

// dayBounds returns [midnight, next midnight) of day in loc.
func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	day = day.In(loc)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}
