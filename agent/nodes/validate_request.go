package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrInvalidQuery)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", contractx.ErrValidation, catalog.ErrInvalidRole, in.Role)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrInvalidUser)
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrMissingCredential)
	}

	return &GraphState{
		Query:  query,
		Role:   in.Role,
		UserID: userID,
		Token:  token,
		Now:    nowFn().UTC(),
	}, nil
}
