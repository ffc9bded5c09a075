package translate

import (
	"context"
	"sync"
	"time"
)

// StubConfig configures the stub translator behavior.
type StubConfig struct {
	// ProcessingDelay simulates translation processing time.
	ProcessingDelay time.Duration
	// Dictionary maps [targetLang][sourceText] to translated text.
	// Unlisted texts get a "[lang] " prefix.
	Dictionary map[string]map[string]string
	// FailFirst fails the first N attempts per source text with Err,
	// then succeeds. Used to exercise the retry path.
	FailFirst int
	// Err is the error returned while failing (defaults to a 503).
	Err error
}

// DefaultStubConfig returns a small dictionary useful in tests.
func DefaultStubConfig() *StubConfig {
	return &StubConfig{
		Dictionary: map[string]map[string]string{
			"es": {
				"Good morning everyone and welcome": "Buenos días a todos y bienvenidos",
				"Thank you for joining":             "Gracias por acompañarnos",
			},
			"de": {
				"Good morning everyone and welcome": "Guten Morgen zusammen und willkommen",
				"Thank you for joining":             "Danke fürs Dabeisein",
			},
		},
	}
}

// Stub is a deterministic in-process translator.
type Stub struct {
	cfg *StubConfig

	mu       sync.Mutex
	attempts map[string]int
}

// NewStub creates a stub translator.
func NewStub(cfg *StubConfig) *Stub {
	if cfg == nil {
		cfg = DefaultStubConfig()
	}
	return &Stub{
		cfg:      cfg,
		attempts: make(map[string]int),
	}
}

// Translate returns the dictionary entry or a language-prefixed copy of the
// source text.
func (s *Stub) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if s.cfg.FailFirst > 0 {
		s.mu.Lock()
		s.attempts[text]++
		n := s.attempts[text]
		s.mu.Unlock()
		if n <= s.cfg.FailFirst {
			err := s.cfg.Err
			if err == nil {
				err = &HTTPStatusError{StatusCode: 503}
			}
			return "", err
		}
	}

	if s.cfg.ProcessingDelay > 0 {
		select {
		case <-time.After(s.cfg.ProcessingDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if langDict, ok := s.cfg.Dictionary[targetLang]; ok {
		if translated, ok := langDict[text]; ok {
			return translated, nil
		}
	}
	return "[" + targetLang + "] " + text, nil
}
