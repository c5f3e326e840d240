package models

import (
	"context"
)

type sessionContextKey struct{}

// Session identifies the caller of a request. It is resolved once per request
// from the wallet or user header and carried on the context, never stored globally.
type Session struct {
	User          *User
	WalletAddress string
	RequestId     string
}

// UserId returns the session user's id, or zero when the caller is anonymous.
func (s *Session) UserId() int64 {
	if s == nil || s.User == nil {
		return 0
	}
	return s.User.Id
}

// WithSession attaches a session to a context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext retrieves the session from context, or nil if absent.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}
