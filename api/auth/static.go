package auth

import (
	"context"
	"fmt"
	"strings"
)

// StaticVerifier maps fixed tokens to claims. It is meant for local
// development and tests.
type StaticVerifier struct {
	tokens map[string]Claims
}

var _ Verifier = (*StaticVerifier)(nil)

func NewStaticVerifier(tokens map[string]Claims) *StaticVerifier {
	cp := make(map[string]Claims, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticVerifier{tokens: cp}
}

// ParseStaticTokens reads "token=subject:ROLE[,ROLE];token2=..." entries.
// A subject without roles yields claims with no roles.
func ParseStaticTokens(raw string) (*StaticVerifier, error) {
	tokens := make(map[string]Claims)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, ident, ok := strings.Cut(entry, "=")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("auth: malformed static token entry %q", entry)
		}
		sub, roleList, _ := strings.Cut(ident, ":")
		sub = strings.TrimSpace(sub)
		if sub == "" {
			return nil, fmt.Errorf("auth: static token %q has no subject", token)
		}

		var roles []string
		for _, r := range strings.Split(roleList, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
		tokens[token] = Claims{Subject: sub, Name: sub, Roles: roles}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("auth: no static tokens configured")
	}
	return &StaticVerifier{tokens: tokens}, nil
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Claims, error) {
	c, ok := v.tokens[token]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown token", ErrUnauthenticated)
	}
	return c, nil
}
