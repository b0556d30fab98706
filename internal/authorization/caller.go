package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidRole  = errors.New("invalid_role")
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCompany Role = "company"
	// RoleSystem is used by the scheduler and cron triggers.
	RoleSystem Role = "system"
)

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleCompany:
		return RoleCompany, nil
	default:
		return "", ErrInvalidRole
	}
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   snowflake.ID
	Role Role
}

// SystemCaller acts on behalf of background jobs.
var SystemCaller = Caller{Role: RoleSystem}

// IsPrivileged reports whether the caller may act on any owner's data.
func (c Caller) IsPrivileged() bool {
	return c.Role == RoleAdmin || c.Role == RoleSystem
}

func (c Caller) subject() string {
	return "role:" + string(c.Role)
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
