package common

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleExecutive Role = "executive"
	RoleWorker    Role = "worker"
	RoleUser      Role = "user"
)

// Caller is the authenticated identity supplied by the session layer.
type Caller struct {
	UserID primitive.ObjectID
	Roles  []Role
}

// IsElevated reports whether the caller holds a global elevated role.
func (c Caller) IsElevated() bool {
	for _, r := range c.Roles {
		if r == RoleAdmin || r == RoleExecutive {
			return true
		}
	}
	return false
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
