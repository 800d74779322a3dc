package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates HS256 or RS256 tokens issued by the identity provider.
type JWTVerifier struct {
	rolesClaim string
	parser     *jwt.Parser
	hmacSecret []byte
	publicKey  *rsa.PublicKey
}

var _ Verifier = (*JWTVerifier)(nil)

// NewHS256Verifier validates tokens signed with a shared secret.
func NewHS256Verifier(secret []byte, issuer, audience, rolesClaim string) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: hs256 secret is empty")
	}
	return &JWTVerifier{
		rolesClaim: rolesClaimOrDefault(rolesClaim),
		parser:     newParser("HS256", issuer, audience),
		hmacSecret: secret,
	}, nil
}

// NewRS256Verifier validates tokens signed by the holder of the PEM key's
// private half.
func NewRS256Verifier(publicKeyPEM []byte, issuer, audience, rolesClaim string) (*JWTVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("auth: parse rs256 public key: %w", err)
	}
	return &JWTVerifier{
		rolesClaim: rolesClaimOrDefault(rolesClaim),
		parser:     newParser("RS256", issuer, audience),
		publicKey:  key,
	}, nil
}

func newParser(method, issuer, audience string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return jwt.NewParser(opts...)
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, mc, func(t *jwt.Token) (any, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.hmacSecret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub, _ := mc.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	name, _ := mc["name"].(string)

	return Claims{
		Subject: sub,
		Name:    name,
		Roles:   stringList(mc[v.rolesClaim]),
	}, nil
}

// stringList accepts a JSON array of strings or a single string.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

func rolesClaimOrDefault(claim string) string {
	if strings.TrimSpace(claim) == "" {
		return DefaultRolesClaim
	}
	return claim
}
