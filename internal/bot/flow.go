package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"peran/internal/booking"
	"peran/internal/calendar"
	"peran/internal/events"
	"peran/internal/model"
	"peran/internal/portal"
	"peran/internal/slots"
)

// skipInput leaves an optional field empty.
const skipInput = "-"

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// startBooking loads a form for the chat and asks for the first missing
// selection. A form that was already used is replaced.
func (b *Bot) startBooking(ctx context.Context, chatID int64) {
	session, fresh := b.sessions.GetOrCreate(chatID)
	if !fresh && session.Controller.View().State != booking.StateLoading {
		session = b.sessions.Reset(chatID)
	}
	session.Controller.Load(ctx)

	v := session.Controller.View()
	if !v.Rules.IsRestaurant && (len(v.Services) == 0 || len(v.Providers) == 0) {
		b.sessions.Delete(chatID)
		b.reply(chatID, "Bokning är inte tillgänglig just nu. Försök igen senare.")
		return
	}
	b.advance(ctx, chatID, session)
}

// advance shows the step for the first selection the form lacks.
func (b *Bot) advance(ctx context.Context, chatID int64, session *booking.Session) {
	v := session.Controller.View()
	f := v.Form
	switch {
	case !v.Rules.IsRestaurant && f.ServiceID == "":
		b.sendServices(chatID, session, 0)
	case !v.Rules.IsRestaurant && f.ProviderID == "":
		b.sendProviders(chatID, session, 0)
	case f.Date.IsZero():
		b.sendCalendar(chatID, 0, session, calendar.MonthOf(b.now().In(b.loc)))
	case f.Time == "":
		b.sendSlots(chatID, session, v)
	default:
		b.askAfter(ctx, chatID, session, booking.FieldNone)
	}
}

func (b *Bot) sendServices(chatID int64, session *booking.Session, page int) {
	v := session.Controller.View()
	choices := make([]choice, 0, len(v.Services))
	for _, s := range v.Services {
		choices = append(choices, choice{ID: s.ID, Name: fmt.Sprintf("%s (%s)", s.Name, slots.FormatDuration(s.Minutes()))})
	}
	msg := tgbotapi.NewMessage(chatID, "Välj "+v.Rules.ServiceTerm+":")
	msg.ReplyMarkup = paginatedKeyboard(choices, PaginationParams{Page: page, ItemPrefix: "svc:", PagePrefix: "svcpage:"})
	b.send(msg)
}

func (b *Bot) sendProviders(chatID int64, session *booking.Session, page int) {
	v := session.Controller.View()
	choices := make([]choice, 0, len(v.Providers))
	for _, p := range v.Providers {
		choices = append(choices, choice{ID: p.ID, Name: p.Name})
	}
	msg := tgbotapi.NewMessage(chatID, "Välj "+v.Rules.ProviderTerm+":")
	msg.ReplyMarkup = paginatedKeyboard(choices, PaginationParams{Page: page, ItemPrefix: "prov:", PagePrefix: "provpage:"})
	b.send(msg)
}

func (b *Bot) handleService(ctx context.Context, chatID int64, session *booking.Session, id string) {
	if model.FindService(session.Controller.View().Services, id) == nil {
		b.reply(chatID, "Okänt val. Välj igen.")
		b.sendServices(chatID, session, 0)
		return
	}
	session.Controller.SelectService(ctx, id)
	b.advance(ctx, chatID, session)
}

func (b *Bot) handleProvider(ctx context.Context, chatID int64, session *booking.Session, id string) {
	if model.FindProvider(session.Controller.View().Providers, id) == nil {
		b.reply(chatID, "Okänt val. Välj igen.")
		b.sendProviders(chatID, session, 0)
		return
	}
	session.Controller.SelectProvider(ctx, id)
	// Fully booked days depend on the provider.
	session.Controller.RefreshBookedDates(ctx)
	b.advance(ctx, chatID, session)
}

// sendCalendar shows month. A non-zero msgID edits that message in place.
func (b *Bot) sendCalendar(chatID int64, msgID int, session *booking.Session, month calendar.Month) {
	v := session.Controller.View()
	now := b.now()
	text := "Välj datum:"
	if !month.HasSelectable(now, v.Booked, v.Closed) {
		text = "Inga lediga dagar i " + month.Title() + ". Bläddra vidare till nästa månad."
	}
	kb := calendarKeyboard(month, now, v.Booked, v.Closed)
	if msgID != 0 {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, kb))
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	b.send(msg)
}

func (b *Bot) handleNav(chatID int64, msgID int, session *booking.Session, key string) {
	month, err := calendar.Parse(key, b.loc)
	if err != nil {
		return
	}
	if month.First().Before(calendar.MonthOf(b.now().In(b.loc)).First()) {
		return
	}
	b.sendCalendar(chatID, msgID, session, month)
}

func (b *Bot) handleDate(ctx context.Context, chatID int64, session *booking.Session, key string) {
	v := session.Controller.View()
	day, err := calendar.Select(key, b.now(), v.Booked, v.Closed, b.loc)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("date rejected")
		b.reply(chatID, "Det datumet går inte att välja. Välj ett annat.")
		return
	}
	session.Await(booking.FieldNone)
	session.Controller.SelectDate(ctx, day)
	b.sendSlots(chatID, session, session.Controller.View())
}

// sendSlots lists the free times of the chosen day, or goes back to the
// calendar when there are none.
func (b *Bot) sendSlots(chatID int64, session *booking.Session, v booking.View) {
	if len(v.Slots) == 0 {
		b.reply(chatID, "Inga lediga tider den dagen. Välj ett annat datum.")
		b.sendCalendar(chatID, 0, session, calendar.MonthOf(v.Form.Date))
		return
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s, %s:", v.Rules.TimeLabel, calendar.DayTitle(v.Form.Date)))
	msg.ReplyMarkup = slotsKeyboard(v.Slots)
	b.send(msg)
}

func (b *Bot) handleSlot(ctx context.Context, chatID int64, session *booking.Session, hhmm string) {
	if err := session.Controller.SelectTime(hhmm); err != nil {
		b.reply(chatID, "Tiden är inte längre ledig.")
		session.Controller.Recompute(ctx)
		b.sendSlots(chatID, session, session.Controller.View())
		return
	}
	v := session.Controller.View()
	if v.Rules.IsRestaurant || v.Rules.RequirePartySize {
		session.Await(booking.FieldGuests)
		msg := tgbotapi.NewMessage(chatID, "Hur många gäster?")
		msg.ReplyMarkup = guestsKeyboard(v.Form.Guests)
		b.send(msg)
		return
	}
	b.askAfter(ctx, chatID, session, booking.FieldNone)
}

func (b *Bot) handleGuests(ctx context.Context, chatID int64, session *booking.Session, value string) {
	if err := session.Controller.SetGuests(atoi(value)); err != nil {
		b.reply(chatID, fmt.Sprintf("Ange ett antal mellan %d och %d.", booking.MinGuests, booking.MaxGuests))
		return
	}
	b.nextStep(ctx, chatID, session, booking.FieldNone)
}

// textFields are the free-text fields the tenant asks for, in order.
func textFields(r model.ResolvedFormRules) []booking.Field {
	fields := []booking.Field{booking.FieldName}
	if r.ShowEmail {
		fields = append(fields, booking.FieldEmail)
	}
	if r.ShowPhone {
		fields = append(fields, booking.FieldPhone)
	}
	if r.RequireNotes {
		fields = append(fields, booking.FieldNotes)
	}
	if r.ShowSpecial {
		fields = append(fields, booking.FieldSpecialRequests)
	}
	return fields
}

func fieldValue(f booking.Form, field booking.Field) string {
	switch field {
	case booking.FieldName:
		return f.Name
	case booking.FieldEmail:
		return f.Email
	case booking.FieldPhone:
		return f.Phone
	case booking.FieldNotes:
		return f.Notes
	case booking.FieldSpecialRequests:
		return f.SpecialRequests
	}
	return ""
}

var prompts = map[booking.Field]string{
	booking.FieldName:            "Vad heter du?",
	booking.FieldEmail:           "Din e-postadress?",
	booking.FieldPhone:           "Ditt telefonnummer?",
	booking.FieldNotes:           "Meddelande till oss?",
	booking.FieldSpecialRequests: "Särskilda önskemål, t.ex. allergier eller barnstol?",
}

// askAfter asks for the first empty text field following prev, then for
// add-ons, then shows the summary. FieldNone starts from the top.
func (b *Bot) askAfter(ctx context.Context, chatID int64, session *booking.Session, prev booking.Field) {
	v := session.Controller.View()
	fields := textFields(v.Rules)
	start := 0
	for i, f := range fields {
		if f == prev {
			start = i + 1
		}
	}
	for _, f := range fields[start:] {
		if fieldValue(v.Form, f) == "" {
			b.askField(chatID, session, f)
			return
		}
	}
	session.Await(booking.FieldNone)
	if v.Rules.ShowProducts && len(v.Products) > 0 {
		msg := tgbotapi.NewMessage(chatID, "Vill du lägga till något?")
		msg.ReplyMarkup = productsKeyboard(v.Products, v.Form.ProductIDs)
		b.send(msg)
		return
	}
	b.sendConfirm(chatID, session)
}

func (b *Bot) askField(chatID int64, session *booking.Session, f booking.Field) {
	session.Await(f)
	msg := tgbotapi.NewMessage(chatID, prompts[f])
	if f == booking.FieldSpecialRequests {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Hoppa över", "skip")),
		)
	}
	b.send(msg)
}

func (b *Bot) handleFieldInput(ctx context.Context, chatID int64, session *booking.Session, text string) {
	f := session.Awaiting()
	switch f {
	case booking.FieldNone:
		return
	case booking.FieldGuests:
		b.handleGuests(ctx, chatID, session, text)
		return
	}

	text = strings.TrimSpace(text)
	if text == skipInput {
		if f != booking.FieldSpecialRequests {
			b.reply(chatID, "Det här fältet måste fyllas i.")
			return
		}
		text = ""
	} else if text == "" {
		b.reply(chatID, prompts[f])
		return
	}
	if f == booking.FieldPhone {
		if _, err := booking.NormalizePhone(text); err != nil {
			b.reply(chatID, "Ogiltigt telefonnummer. Försök igen, t.ex. 070-123 45 67.")
			return
		}
	}
	if err := session.Controller.SetField(f, text); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("field", string(f)).Msg("set field")
		return
	}
	b.nextStep(ctx, chatID, session, f)
}

// nextStep continues after prev was answered. A form that failed validation
// goes straight back to the summary; Submit reports what is still missing.
func (b *Bot) nextStep(ctx context.Context, chatID int64, session *booking.Session, prev booking.Field) {
	if session.Controller.View().State == booking.StateError {
		session.Await(booking.FieldNone)
		b.sendConfirm(chatID, session)
		return
	}
	b.askAfter(ctx, chatID, session, prev)
}

func (b *Bot) handleProduct(chatID int64, msgID int, session *booking.Session, value string) {
	if value == "done" {
		b.sendConfirm(chatID, session)
		return
	}
	v := session.Controller.View()
	found := false
	for _, p := range v.Products {
		if p.ID == value {
			found = true
			break
		}
	}
	if !found {
		return
	}
	session.Controller.ToggleProduct(value)
	kb := productsKeyboard(v.Products, session.Controller.View().Form.ProductIDs)
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, kb))
}

func (b *Bot) handleBack(ctx context.Context, chatID int64, session *booking.Session, step string) {
	session.Await(booking.FieldNone)
	v := session.Controller.View()
	switch step {
	case "date":
		month := calendar.MonthOf(b.now().In(b.loc))
		if !v.Form.Date.IsZero() {
			month = calendar.MonthOf(v.Form.Date)
		}
		b.sendCalendar(chatID, 0, session, month)
	case "time":
		if v.Form.Date.IsZero() {
			b.advance(ctx, chatID, session)
			return
		}
		session.Controller.Recompute(ctx)
		b.sendSlots(chatID, session, session.Controller.View())
	}
}

// summary renders the form for confirmation.
func summary(v booking.View) string {
	f := v.Form
	var sb strings.Builder
	sb.WriteString("Kontrollera din bokning:\n\n")

	service := model.FindService(v.Services, f.ServiceID)
	if service == nil && v.Rules.IsRestaurant && len(v.Services) > 0 {
		service = &v.Services[0]
	}
	if !v.Rules.IsRestaurant {
		if service != nil {
			fmt.Fprintf(&sb, "%s: %s\n", v.Rules.ServiceLabel, service.Name)
		}
		if p := model.FindProvider(v.Providers, f.ProviderID); p != nil {
			fmt.Fprintf(&sb, "%s: %s\n", v.Rules.ProviderLabel, p.Name)
		}
	}
	fmt.Fprintf(&sb, "Datum: %s\n", calendar.DayTitle(f.Date))
	fmt.Fprintf(&sb, "%s: %s (%s)\n", v.Rules.TimeLabel, f.Time, slots.FormatDuration(service.Minutes()))
	if v.Rules.IsRestaurant || v.Rules.RequirePartySize {
		fmt.Fprintf(&sb, "Antal gäster: %d\n", f.Guests)
	}
	fmt.Fprintf(&sb, "Namn: %s\n", f.Name)
	if f.Email != "" {
		fmt.Fprintf(&sb, "E-post: %s\n", f.Email)
	}
	if f.Phone != "" {
		fmt.Fprintf(&sb, "Telefon: %s\n", f.Phone)
	}
	if f.Notes != "" {
		fmt.Fprintf(&sb, "Meddelande: %s\n", f.Notes)
	}
	if f.SpecialRequests != "" {
		fmt.Fprintf(&sb, "Önskemål: %s\n", f.SpecialRequests)
	}
	if len(f.ProductIDs) > 0 {
		names := make([]string, 0, len(f.ProductIDs))
		for _, p := range v.Products {
			for _, id := range f.ProductIDs {
				if p.ID == id {
					names = append(names, p.Name)
				}
			}
		}
		fmt.Fprintf(&sb, "Tillval: %s\n", strings.Join(names, ", "))
	}
	return sb.String()
}

func (b *Bot) sendConfirm(chatID int64, session *booking.Session) {
	msg := tgbotapi.NewMessage(chatID, summary(session.Controller.View()))
	msg.ReplyMarkup = confirmKeyboard()
	b.send(msg)
}

func (b *Bot) handleConfirm(ctx context.Context, chatID int64, session *booking.Session) {
	l := zerolog.Ctx(ctx)
	before := session.Controller.View()
	outcome, err := session.Controller.Submit(ctx)

	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		b.reply(chatID, booking.MsgRequiredFields)
		b.resume(ctx, chatID, session, verr)
		return
	case errors.Is(err, booking.ErrConflict):
		b.reply(chatID, portal.MsgConflict)
		b.sendSlots(chatID, session, session.Controller.View())
		return
	case errors.Is(err, booking.ErrBusy):
		b.reply(chatID, "Bokningen skickas redan, vänta ett ögonblick.")
		return
	case errors.Is(err, booking.ErrSubmitFailed):
		b.reply(chatID, reason(err, booking.ErrSubmitFailed, portal.MsgCreateFailed))
		return
	case errors.Is(err, booking.ErrPayment):
		b.publishCreated(ctx, chatID, before, outcome)
		b.sessions.Delete(chatID)
		b.reply(chatID, "Bokningen är registrerad men betalningen kunde inte startas. Vi kontaktar dig.")
		return
	case errors.Is(err, portal.ErrCSRFUnavailable):
		l.Error().Err(err).Int64("chat_id", chatID).Msg("booking submission blocked")
		b.sessions.Delete(chatID)
		b.reply(chatID, portal.MsgUnavailable)
		return
	case err != nil:
		l.Error().Err(err).Int64("chat_id", chatID).Msg("submit booking")
		b.reply(chatID, portal.MsgCreateError)
		return
	}

	b.publishCreated(ctx, chatID, before, outcome)
	b.sessions.Delete(chatID)
	if outcome.RequiresPayment {
		msg := tgbotapi.NewMessage(chatID, "Nästan klart! Slutför betalningen för att bekräfta bokningen.")
		msg.ReplyMarkup = paymentKeyboard(outcome.CheckoutURL)
		b.send(msg)
		return
	}
	start := outcome.Start.In(b.loc)
	b.reply(chatID, fmt.Sprintf("Tack! Din bokning är bekräftad: %s kl %s.", calendar.DayTitle(start), start.Format("15:04")))
}

// reason strips the sentinel prefix from a wrapped portal refusal.
func reason(err, sentinel error, fallback string) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" || msg == sentinel.Error() {
		return fallback
	}
	return msg
}

// resume returns to the step of the first rejected field.
func (b *Bot) resume(ctx context.Context, chatID int64, session *booking.Session, verr *booking.ValidationError) {
	fields := verr.Fields()
	if len(fields) == 0 {
		b.advance(ctx, chatID, session)
		return
	}
	v := session.Controller.View()
	switch f := fields[0]; f {
	case booking.FieldService:
		b.sendServices(chatID, session, 0)
	case booking.FieldProvider:
		b.sendProviders(chatID, session, 0)
	case booking.FieldDate, booking.FieldTime:
		b.advance(ctx, chatID, session)
	case booking.FieldGuests:
		session.Await(booking.FieldGuests)
		msg := tgbotapi.NewMessage(chatID, "Hur många gäster?")
		msg.ReplyMarkup = guestsKeyboard(v.Form.Guests)
		b.send(msg)
	default:
		b.askField(chatID, session, f)
	}
}

func (b *Bot) publishCreated(ctx context.Context, chatID int64, v booking.View, outcome *booking.Outcome) {
	if outcome == nil {
		return
	}
	p := events.BookingPayload{
		CustomerName:    v.Form.Name,
		Start:           outcome.Start,
		End:             outcome.End,
		PartySize:       v.Form.Guests,
		RequiresPayment: outcome.RequiresPayment,
		Actor:           chatID,
	}
	if outcome.Booking != nil {
		p.BookingID = outcome.Booking.ID
	}
	b.publish(ctx, events.TypeBookingCreated, p)
}

func (b *Bot) publish(ctx context.Context, typ string, p events.BookingPayload) {
	ev, err := events.NewBookingEvent(typ, p)
	if err == nil {
		ev.CreatedAt = b.now()
		err = b.events.Publish(ev)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", typ).Msg("publish event")
	}
}
