package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// Callback actions. Every payload carries the session id so a keyboard
// from an older session cannot act on the current one.
const (
	actionFormat = "fmt"
	actionPage   = "page"
	actionCancel = "cancel"

	maxAudioButtons = 2
)

type callback struct {
	action    string
	sessionID string
	arg       string
}

func (c callback) String() string {
	parts := []string{c.action, c.sessionID}
	if c.arg != "" {
		parts = append(parts, c.arg)
	}
	return strings.Join(parts, "|")
}

func parseCallback(data string) (callback, bool) {
	parts := strings.SplitN(data, "|", 3)
	if len(parts) < 2 || parts[1] == "" {
		return callback{}, false
	}
	cb := callback{action: parts[0], sessionID: parts[1]}
	if len(parts) == 3 {
		cb.arg = parts[2]
	}

	switch cb.action {
	case actionFormat:
		return cb, cb.arg != ""
	case actionPage:
		n, err := strconv.Atoi(cb.arg)
		return cb, err == nil && n >= 0
	case actionCancel:
		return cb, true
	}
	return callback{}, false
}

// formatKeyboard lists one page of video formats, the best audio formats,
// navigation and a cancel button
func formatKeyboard(sessionID string, media *domain.MediaDescriptor, page, perPage int) tgbotapi.InlineKeyboardMarkup {
	if perPage <= 0 {
		perPage = 5
	}
	video := media.FormatsOfKind(domain.KindVideo)
	audio := media.FormatsOfKind(domain.KindAudio)

	pages := (len(video) + perPage - 1) / perPage
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	start := page * perPage
	end := start + perPage
	if end > len(video) {
		end = len(video)
	}
	for _, f := range video[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(formatButton(sessionID, f)))
	}

	if len(audio) > maxAudioButtons {
		audio = audio[:maxAudioButtons]
	}
	for _, f := range audio {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(formatButton(sessionID, f)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Previous",
			callback{actionPage, sessionID, strconv.Itoa(page - 1)}.String()))
	}
	if end < len(video) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️",
			callback{actionPage, sessionID, strconv.Itoa(page + 1)}.String()))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(cancelButton(sessionID, "🔙 Cancel")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func progressKeyboard(sessionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(cancelButton(sessionID, "❌ Cancel download")),
	)
}

func formatButton(sessionID string, f domain.FormatOption) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(buttonLabel(f), callback{actionFormat, sessionID, f.ID}.String())
}

func cancelButton(sessionID, label string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, callback{action: actionCancel, sessionID: sessionID}.String())
}
