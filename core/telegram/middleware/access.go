package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender matches opts.AdminID. A zero AdminID admits nobody.
func IsAdmin(opts AdminOptions, c tele.Context) bool {
	user := c.Sender()
	return opts.AdminID != 0 && user != nil && user.ID == opts.AdminID
}

// AdminOnly wraps next so that only the admin user reaches it.
func AdminOnly(opts AdminOptions, next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !IsAdmin(opts, c) {
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return next(c)
	}
}

// AdminOnlyMiddleware is AdminOnly in middleware form.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return AdminOnly(opts, next)
	}
}
