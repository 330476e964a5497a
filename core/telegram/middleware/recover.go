package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/logger"
	tghelpers "github.com/m3rciful/scenariobot/core/telegram/helpers"
)

// PanicReply is sent to the user when a handler panics.
const PanicReply = "Извините, произошла ошибка. Попробуйте позже."

// RecoverMiddleware catches panics in handlers, logs them and apologises to the user.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
				slog.String("status", "fail"),
				slog.Any("err", fmt.Errorf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
			if c.Chat() != nil {
				_ = c.Send(PanicReply)
			}
			err = nil
		}()
		return next(c)
	}
}
