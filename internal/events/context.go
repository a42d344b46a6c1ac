package events

import "context"

type ctxKey int

const (
	requestUUIDKey ctxKey = iota
	userKey
)

// WithRequestUUID returns a context carrying the id of the request that
// caused the change.
func WithRequestUUID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestUUIDKey, id)
}

// RequestUUID returns the request id carried by ctx, if any.
func RequestUUID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestUUIDKey).(string)
	return id, ok && id != ""
}

// WithUser returns a context carrying a reference to the current user. The
// reference is opaque to fieldship and only handed to the UserIdentifier.
func WithUser(ctx context.Context, user any) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// User returns the current user reference carried by ctx, if any.
func User(ctx context.Context) (any, bool) {
	u := ctx.Value(userKey)
	return u, u != nil
}

// UserIdentifier maps a user reference to the identifier sent as user_id.
// It returns false when the user has no identifier.
type UserIdentifier func(user any) (string, bool)

// DefaultUserIdentifier accepts string references and values with an ID method.
func DefaultUserIdentifier(user any) (string, bool) {
	switch u := user.(type) {
	case string:
		return u, u != ""
	case interface{ ID() string }:
		id := u.ID()
		return id, id != ""
	}
	return "", false
}
