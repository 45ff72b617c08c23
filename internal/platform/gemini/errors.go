package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/phrazzld/aves-annotator/internal/domain"
	"google.golang.org/genai"
)

var (
	// ErrInvalidConfig is returned by New when required settings are missing.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrImageUnreadable is returned when a local image cannot be loaded.
	ErrImageUnreadable = fmt.Errorf("%w: image unreadable", domain.ErrPermanentService)
)

// classifyError wraps err with the transient or permanent service sentinel.
// parent is the caller's context: a deadline on the per-request context is a
// transient timeout, but cancellation of the caller is passed through.
func classifyError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.Code) {
			return fmt.Errorf("%w: status %d: %s", domain.ErrTransientService, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: status %d: %s", domain.ErrPermanentService, apiErr.Code, apiErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out", domain.ErrTransientService)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrTransientService, err)
	}

	// Unknown failures are treated as transient; the retry budget bounds them.
	return fmt.Errorf("%w: %v", domain.ErrTransientService, err)
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
