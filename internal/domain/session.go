package domain

import (
	"context"
	"time"
)

// RoleAdmin is the only user type allowed into the dashboard
const RoleAdmin = "admin"

// Session is the authenticated admin. It travels in the request context and
// is handed explicitly to whatever needs the caller's identity.
type Session struct {
	ID         string    `json:"-"`
	Token      string    `json:"-"`
	UserID     int64     `json:"userId"`
	DocumentID string    `json:"documentId"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// IsAdmin reports whether the session may use the dashboard
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type sessionKey struct{}

// WithSession stores s in ctx
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the session from ctx
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
