package translate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// DispatcherConfig tunes translation dispatch.
type DispatcherConfig struct {
	TargetLang string
	SourceLang string
	// MaxInflight caps concurrent translation requests.
	MaxInflight int
	// Retries after the first attempt, transient failures only.
	Retries int
	// Jittered backoff window between attempts.
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
	// RequestTimeout bounds a single translation attempt.
	RequestTimeout time.Duration
	// Buffer sizes the two output channels.
	Buffer int
}

// DefaultDispatcherConfig returns the standard dispatch settings.
func DefaultDispatcherConfig(targetLang string) DispatcherConfig {
	return DispatcherConfig{
		TargetLang:      targetLang,
		SourceLang:      "auto",
		MaxInflight:     4,
		Retries:         2,
		RetryBackoffMin: 100 * time.Millisecond,
		RetryBackoffMax: 500 * time.Millisecond,
		RequestTimeout:  10 * time.Second,
		Buffer:          64,
	}
}

// Dispatcher issues exactly one translation request per utterance, at most
// MaxInflight concurrently; excess utterances queue in arrival order.
// Results go out on two independent channels so a slow render path never
// blocks history delivery.
type Dispatcher struct {
	translator Translator
	in         <-chan model.Utterance
	render     chan model.TranslatedUtterance
	history    chan model.TranslatedUtterance
	cfg        DispatcherConfig

	m      *metrics.Metrics
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher reading finalized utterances from in.
func NewDispatcher(translator Translator, in <-chan model.Utterance, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxInflight < 1 {
		cfg.MaxInflight = 1
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 64
	}
	if cfg.RetryBackoffMax <= cfg.RetryBackoffMin {
		cfg.RetryBackoffMax = cfg.RetryBackoffMin + time.Millisecond
	}
	return &Dispatcher{
		translator: translator,
		in:         in,
		render:     make(chan model.TranslatedUtterance, cfg.Buffer),
		history:    make(chan model.TranslatedUtterance, cfg.Buffer),
		cfg:        cfg,
		m:          metrics.DefaultMetrics,
		logger:     logging.WithComponent("dispatcher"),
	}
}

// Render returns the channel feeding the reorder/render buffer. Completions
// may arrive out of sequence order.
func (d *Dispatcher) Render() <-chan model.TranslatedUtterance {
	return d.render
}

// History returns the channel feeding the history logger.
func (d *Dispatcher) History() <-chan model.TranslatedUtterance {
	return d.history
}

// Run dispatches until the input channel closes, then waits for in-flight
// requests and closes both output channels.
func (d *Dispatcher) Run(ctx context.Context) error {
	sem := make(chan struct{}, d.cfg.MaxInflight)
	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		close(d.render)
		close(d.history)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-d.in:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			d.m.TranslateInflight.Inc()
			wg.Add(1)
			go func(u model.Utterance) {
				defer func() {
					<-sem
					d.m.TranslateInflight.Dec()
					wg.Done()
				}()
				tu := d.translate(ctx, u)
				// History first: render backpressure must never gate
				// durable logging.
				d.emit(ctx, d.history, tu)
				d.emit(ctx, d.render, tu)
			}(u)
		}
	}
}

// translate runs one utterance through the retry/fallback policy.
func (d *Dispatcher) translate(ctx context.Context, u model.Utterance) model.TranslatedUtterance {
	start := time.Now()
	attempts := 1 + d.cfg.Retries

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
		text, err := d.translator.Translate(reqCtx, u.SourceText, d.cfg.SourceLang, d.cfg.TargetLang)
		cancel()

		if err == nil {
			d.m.RecordTranslate(time.Since(start).Seconds(), false)
			return model.TranslatedUtterance{
				Utterance:    u,
				TargetText:   text,
				TargetLang:   d.cfg.TargetLang,
				TranslatedAt: time.Now(),
				OK:           true,
			}
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == attempts {
			break
		}

		d.m.TranslateRetries.Inc()
		lg := logging.WithUtterance("dispatcher", u.SequenceNo, u.UtteranceID)
		lg.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("Translation failed, retrying")

		select {
		case <-time.After(d.jitter()):
		case <-ctx.Done():
		}
	}

	// Passthrough fallback: an untranslated subtitle beats a missing one.
	d.m.RecordTranslate(time.Since(start).Seconds(), true)
	lg := logging.WithUtterance("dispatcher", u.SequenceNo, u.UtteranceID)
	lg.Warn().
		Err(lastErr).
		Msg("Translation exhausted, falling back to source text")

	return model.TranslatedUtterance{
		Utterance:    u,
		TargetText:   u.SourceText,
		TargetLang:   d.cfg.TargetLang,
		TranslatedAt: time.Now(),
		OK:           false,
		FallbackUsed: true,
	}
}

func (d *Dispatcher) jitter() time.Duration {
	window := d.cfg.RetryBackoffMax - d.cfg.RetryBackoffMin
	return d.cfg.RetryBackoffMin + rand.N(window)
}

func (d *Dispatcher) emit(ctx context.Context, ch chan<- model.TranslatedUtterance, tu model.TranslatedUtterance) {
	select {
	case ch <- tu:
	case <-ctx.Done():
	}
}
