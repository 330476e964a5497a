// Package keyboard builds reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a resizable reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// Chunk splits labels into rows with up to n labels each. Empty labels are skipped.
func Chunk(labels []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	var rows [][]string
	var row []string
	for _, l := range labels {
		if l == "" {
			continue
		}
		row = append(row, l)
		if len(row) == n {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// Suggestions returns a reply keyboard offering labels n per row, or RemoveKeyboard when empty.
func Suggestions(labels []string, n int) *tele.ReplyMarkup {
	rows := Chunk(labels, n)
	if len(rows) == 0 {
		return RemoveKeyboard()
	}
	return ReplyButtons(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// Single returns an inline keyboard with one button.
func Single(btn InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{btn})
}
