// Package translate converts finalized utterances into the target language.
// The Dispatcher bounds concurrent requests, retries transient failures, and
// falls back to passthrough source text rather than dropping an utterance.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Translator converts a single text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// HTTPStatusError reports a non-2xx response from a translation backend.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("translation backend returned status %d", e.StatusCode)
}

// IsTransient reports whether a translation error is worth retrying:
// timeouts and server-side failures are; malformed requests are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}
	return false
}
