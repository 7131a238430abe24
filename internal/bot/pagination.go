package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const itemsPerPage = 8

// choice is one button of a paginated list.
type choice struct {
	ID   string
	Name string
}

type PaginationParams struct {
	Page       int
	ItemPrefix string
	PagePrefix string
}

// paginatedKeyboard renders one page of choices with prev/next buttons.
func paginatedKeyboard(choices []choice, params PaginationParams) tgbotapi.InlineKeyboardMarkup {
	pages := (len(choices) + itemsPerPage - 1) / itemsPerPage
	if params.Page >= pages {
		params.Page = pages - 1
	}
	if params.Page < 0 {
		params.Page = 0
	}
	startIdx := params.Page * itemsPerPage
	endIdx := startIdx + itemsPerPage
	if endIdx > len(choices) {
		endIdx = len(choices)
	}

	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, c := range choices[startIdx:endIdx] {
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Name, params.ItemPrefix+c.ID),
		))
	}

	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Föregående", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < len(choices) {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Nästa ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}
	keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Avbryt", "cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}
