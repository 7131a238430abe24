package bot

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"peran/internal/booking"
	"peran/internal/calendar"
	"peran/internal/model"
)

// calendarKeyboard builds a Monday-first month grid. Days that cannot be
// picked do nothing, and there is no way back past the current month.
func calendarKeyboard(month calendar.Month, now time.Time, booked, closed map[string]bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 9)

	// Month header with navigation
	header := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	current := calendar.MonthOf(now.In(month.First().Location()))
	if month.First().After(current.First()) {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData("◀", "nav:"+month.Prev().Key()))
	} else {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
	}
	header = append(header,
		tgbotapi.NewInlineKeyboardButtonData(month.Title(), "noop"),
		tgbotapi.NewInlineKeyboardButtonData("▶", "nav:"+month.Next().Key()),
	)
	rows = append(rows, header)

	// Weekday header
	weekdays := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for _, name := range calendar.Weekdays {
		weekdays = append(weekdays, tgbotapi.NewInlineKeyboardButtonData(name, "noop"))
	}
	rows = append(rows, weekdays)

	for _, week := range month.Weeks(now, booked, closed) {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for _, day := range week {
			switch {
			case day == nil:
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
			case !day.Selectable:
				label := "·"
				if day.Booked {
					label = "✖"
				}
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "noop"))
			default:
				label := strconv.Itoa(day.Date.Day())
				if day.Today {
					label = "[" + label + "]"
				}
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "date:"+day.Key))
			}
		}
		rows = append(rows, row)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("❌ Avbryt", "cancel"),
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// slotsKeyboard lists the free times of a day in rows of three.
func slotsKeyboard(slots []model.TimeSlot) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	var currentRow []tgbotapi.InlineKeyboardButton
	for _, slot := range slots {
		currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(slot.Display, "slot:"+slot.Display))
		if len(currentRow) == 3 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}
	if len(currentRow) > 0 {
		rows = append(rows, currentRow)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Byt datum", "back:date"),
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// guestsKeyboard offers party sizes in rows of four.
func guestsKeyboard(selected int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	var row []tgbotapi.InlineKeyboardButton
	for n := booking.MinGuests; n <= booking.MaxGuests; n++ {
		label := strconv.Itoa(n)
		if n == selected {
			label = "• " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("guests:%d", n)))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Byt tid", "back:time"),
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// productsKeyboard toggles add-ons and finishes with "done".
func productsKeyboard(products []model.Product, chosen []string) tgbotapi.InlineKeyboardMarkup {
	picked := make(map[string]bool, len(chosen))
	for _, id := range chosen {
		picked[id] = true
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		label := p.Name
		if picked[p.ID] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, "prod:"+p.ID)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Klar ➡️", "prod:done")))
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Bekräfta", "confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Avbryt", "cancel"),
		),
	)
}

func paymentKeyboard(checkoutURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Betala", checkoutURL)),
	)
}
