package refresh

import (
	"errors"
	"fmt"

	"github.com/cloudshelf/cloudshelf/internal/config"
)

// ErrNotConfigured is wrapped by every precondition failure so callers
// can map the whole family to a client error.
var ErrNotConfigured = errors.New("refresh is not configured")

// ValidateConfig checks every precondition a scan needs before any task
// is created. Each missing piece gets its own message so the caller sees
// exactly what to fix.
func ValidateConfig(cfg *config.Config) error {
	switch {
	case !cfg.DriveEnabled:
		return fmt.Errorf("%w: drive backend is disabled", ErrNotConfigured)
	case cfg.DriveEndpoint == "":
		return fmt.Errorf("%w: drive endpoint is empty", ErrNotConfigured)
	case cfg.DriveUsername == "":
		return fmt.Errorf("%w: drive username is empty", ErrNotConfigured)
	case cfg.DrivePassword == "":
		return fmt.Errorf("%w: drive password is empty", ErrNotConfigured)
	case cfg.TMDBAPIKey == "":
		return fmt.Errorf("%w: TMDB API key is empty", ErrNotConfigured)
	}
	return nil
}
