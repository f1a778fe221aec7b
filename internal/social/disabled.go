package social

import (
	"context"
	"fmt"

	"miniapp-server/internal/domain"
)

// Disabled stands in when no compose credentials are configured. Every
// cast attempt is refused before any network call.
type Disabled struct{}

func (Disabled) Cast(_ context.Context, _ string, _ ...string) (string, error) {
	return "", fmt.Errorf("%w: cast sharing is not configured", domain.ErrValidation)
}
