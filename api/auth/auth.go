// Package auth verifies bearer tokens and resolves the caller's staff role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

// DefaultRolesClaim is the custom claim the identity provider fills with the
// caller's roles.
const DefaultRolesClaim = "https://zooai/roles"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrPermission      = errors.New("permission denied")
)

// Claims is the verified identity extracted from a token.
type Claims struct {
	Subject string
	Name    string
	Roles   []string
}

// Verifier checks a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ResolveRole returns the caller's single role. Zero roles, more than one
// role, or a name outside the closed set all fail with ErrPermission.
func ResolveRole(c Claims) (catalog.Role, error) {
	switch len(c.Roles) {
	case 0:
		return "", fmt.Errorf("%w: user has no roles assigned", ErrPermission)
	case 1:
	default:
		return "", fmt.Errorf("%w: user must have exactly one role, found %v", ErrPermission, c.Roles)
	}

	role := catalog.Role(strings.TrimSpace(c.Roles[0]))
	if !role.Valid() {
		return "", fmt.Errorf("%w: invalid role %q", ErrPermission, c.Roles[0])
	}
	return role, nil
}

type ctxKey string

const (
	claimsKey ctxKey = "claims"
	tokenKey  ctxKey = "token"
)

func withIdentity(ctx context.Context, c Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, c)
	return context.WithValue(ctx, tokenKey, token)
}

// ClaimsFrom returns the verified claims stored by Authenticate.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// TokenFrom returns the raw bearer token stored by Authenticate.
func TokenFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}

// RoleFrom resolves the role of the authenticated caller.
func RoleFrom(ctx context.Context) (catalog.Role, error) {
	c, ok := ClaimsFrom(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return ResolveRole(c)
}
