package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Actor identifies the authenticated caller of a workflow operation: the
// user, their resolved display name, role, and organization. Services take
// it as an explicit argument instead of digging identity out of ambient
// state, so every call site shows who is acting.
type Actor struct {
	UserID      int64
	DisplayName string
	Role        string
	OrgID       int64
}

// IsZero reports whether no caller identity was resolved.
func (a Actor) IsZero() bool {
	return a.UserID == 0
}

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
