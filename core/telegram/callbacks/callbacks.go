// Package callbacks encodes and decodes inline button callback data.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const sep = "|"

// Parse splits Telebot's \f<unique>|<payload> encoding. The payload may be empty.
func Parse(data string) (string, string) {
	raw := strings.TrimPrefix(data, "\f")
	raw = strings.TrimPrefix(raw, `\f`)
	key, payload, _ := strings.Cut(raw, sep)
	return strings.TrimSpace(key), payload
}

// FromCallback returns the key and payload of cb. When telebot matched a registered
// unique it has already stripped the prefix and Data holds only the payload.
func FromCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return Parse(cb.Data)
}

// Key returns the callback key of the update in c.
func Key(c tele.Context) string {
	key, _ := FromCallback(c.Callback())
	return key
}

// Payload returns the callback payload of the update in c.
func Payload(c tele.Context) string {
	_, payload := FromCallback(c.Callback())
	return payload
}

// PayloadInt64 parses the callback payload as int64.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(Payload(c), 10, 64)
}
