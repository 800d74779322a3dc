package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

type Config struct {
	RolesClaim         string `envconfig:"ROLES_CLAIM" split_words:"true" default:"https://zooai/roles"`
	Issuer             string `envconfig:"ISSUER" split_words:"true"`
	Audience           string `envconfig:"AUDIENCE" split_words:"true"`
	HS256Secret        string `envconfig:"HS256_SECRET" split_words:"true"`
	RS256PublicKeyFile string `envconfig:"RS256_PUBLIC_KEY_FILE" split_words:"true"`
	StaticTokens       string `envconfig:"STATIC_TOKENS" split_words:"true"`
}

// NewVerifier picks RS256, then HS256, then static tokens, whichever is
// configured first.
func (c Config) NewVerifier() (Verifier, error) {
	switch {
	case strings.TrimSpace(c.RS256PublicKeyFile) != "":
		pem, err := os.ReadFile(c.RS256PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth: read public key: %w", err)
		}
		return NewRS256Verifier(pem, c.Issuer, c.Audience, c.RolesClaim)
	case c.HS256Secret != "":
		return NewHS256Verifier([]byte(c.HS256Secret), c.Issuer, c.Audience, c.RolesClaim)
	case strings.TrimSpace(c.StaticTokens) != "":
		return ParseStaticTokens(c.StaticTokens)
	}
	return nil, errors.New("auth: set AUTH_RS256_PUBLIC_KEY_FILE, AUTH_HS256_SECRET or AUTH_STATIC_TOKENS")
}
