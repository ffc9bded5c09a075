// Package pipeline wires the capture, transcription, aggregation,
// translation, render, and history stages into one running unit with an
// ordered drain on shutdown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/aggregate"
	"live-subtitle-pipeline/internal/asr"
	"live-subtitle-pipeline/internal/capture"
	"live-subtitle-pipeline/internal/config"
	"live-subtitle-pipeline/internal/history"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
	"live-subtitle-pipeline/internal/render"
	"live-subtitle-pipeline/internal/translate"
)

// Options supplies the pluggable collaborators.
type Options struct {
	Config         *config.Configuration
	Source         capture.Source
	SessionFactory asr.SessionFactory
	// TransientErr classifies recognizer session errors as retryable; nil
	// retries everything. Backends supply their own classifier.
	TransientErr func(error) bool
	Translator   translate.Translator
	Overlay      render.Overlay
	Sink         history.Sink
}

// Pipeline owns one run of the subtitle pipeline. Each stage runs on its own
// goroutine; stages hand off work over bounded channels and drain in order
// when the run context is canceled.
type Pipeline struct {
	cfg    *config.Configuration
	source capture.Source
	stream *asr.Stream
	agg    *aggregate.Aggregator
	disp   *translate.Dispatcher
	buf    *render.Buffer
	hist   *history.Logger

	m      *metrics.Metrics
	logger zerolog.Logger
}

// New wires the stages together. The stage graph is fixed:
// source → stream → aggregator → dispatcher → {render buffer, history}.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Source == nil || opts.SessionFactory == nil || opts.Translator == nil {
		return nil, errors.New("pipeline requires a source, a session factory, and a translator")
	}
	if opts.Overlay == nil {
		opts.Overlay = render.NewLogOverlay()
	}
	if opts.Sink == nil {
		sink, err := history.NewFileSink(cfg.HistoryDir, cfg.HistoryFlushInterval)
		if err != nil {
			return nil, fmt.Errorf("create history sink: %w", err)
		}
		opts.Sink = sink
	}

	stream := asr.NewStream(opts.SessionFactory, asr.StreamConfig{
		RingCapacity:       cfg.RingCapacity(),
		ReconnectBase:      cfg.ReconnectBase,
		ReconnectFactor:    cfg.ReconnectFactor,
		ReconnectCap:       cfg.ReconnectCap,
		MaxConnectAttempts: cfg.MaxReconnectAttempts,
		Transient:          opts.TransientErr,
	})

	agg := aggregate.New(stream.Events(), aggregate.Config{
		IdleTimeout: cfg.IdleFinalizeTimeout,
		QueueDepth:  cfg.UtteranceQueueDepth,
	})

	dispCfg := translate.DefaultDispatcherConfig(cfg.TargetLang)
	dispCfg.SourceLang = cfg.SourceLang
	dispCfg.MaxInflight = cfg.MaxInflightTranslations
	dispCfg.Retries = cfg.TranslateRetries
	disp := translate.NewDispatcher(opts.Translator, agg.Utterances(), dispCfg)

	buf := render.New(disp.Render(), opts.Overlay, render.Config{
		MaxHold:     cfg.ReorderMaxHold,
		MinHoldTime: cfg.MinHoldTime,
		MaxHoldTime: cfg.MaxHoldTime,
	})

	hist := history.NewLogger(disp.History(), opts.Sink, history.LoggerConfig{
		Retries:      cfg.HistoryRetries,
		RetryBackoff: 100 * time.Millisecond,
	})

	return &Pipeline{
		cfg:    cfg,
		source: opts.Source,
		stream: stream,
		agg:    agg,
		disp:   disp,
		buf:    buf,
		hist:   hist,
		m:      metrics.DefaultMetrics,
		logger: logging.WithComponent("pipeline"),
	}, nil
}

// Run starts all stages and blocks until ctx is canceled and the drain
// completes, or a stage fails fatally. Stage shutdown cascades downstream:
// the capture loop stops first, the transcription stream flushes (or drops)
// its ring, and each later stage exits when its input channel closes.
func (p *Pipeline) Run(ctx context.Context) error {
	// Downstream stages outlive ctx so they can drain; drainCtx only dies
	// when the stop deadline expires.
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	streamCtx, cancelStream := context.WithCancel(drainCtx)
	defer cancelStream()

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	stage := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error().Err(err).Str("stage", name).Msg("Stage failed")
				select {
				case fatal <- fmt.Errorf("%s: %w", name, err):
				default:
				}
			}
		}()
	}

	stage("history", func() error { return p.hist.Run(drainCtx) })
	stage("render", func() error { return p.buf.Run(drainCtx) })
	stage("dispatcher", func() error { return p.disp.Run(drainCtx) })
	stage("aggregator", func() error { return p.agg.Run(drainCtx) })
	stage("stream", func() error { return p.stream.Run(streamCtx) })

	capCtx, cancelCapture := context.WithCancel(ctx)
	defer cancelCapture()
	captureDone := make(chan error, 1)
	go func() { captureDone <- p.captureLoop(capCtx) }()

	var captureErr, fatalErr error
	select {
	case captureErr = <-captureDone:
	case fatalErr = <-fatal:
		// A stage died; stop capturing and fall through to the drain.
		cancelCapture()
		<-captureDone
	}

	// Ordered drain: stop feeding, empty (or drop) the ring, then let the
	// channel closes cascade through the remaining stages.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), p.cfg.StopDeadline)
	defer cancelStop()

	// After a stage failure there is no recognizer left to drain into.
	if p.cfg.FastStop || fatalErr != nil {
		p.stream.DropBuffered()
	} else if err := p.stream.Drain(stopCtx); err != nil {
		p.logger.Warn().
			Int("framesDropped", p.stream.BufferedFrames()).
			Msg("Stop deadline reached before ring drained")
		p.stream.DropBuffered()
	}
	cancelStream()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		p.logger.Warn().Msg("Stop deadline reached, aborting drain")
		cancelDrain()
		<-done
	}

	if fatalErr != nil {
		return fatalErr
	}
	if captureErr != nil {
		return captureErr
	}
	select {
	case err := <-fatal:
		return err
	default:
	}
	return nil
}

// captureLoop pulls frames from the source until ctx is canceled or the
// source closes. A source error other than closure is a fatal capture fault.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	for {
		ev, err := p.source.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, capture.ErrSourceClosed):
			p.logger.Info().Msg("Capture source closed")
			return nil
		default:
			return fmt.Errorf("capture: %w", err)
		}

		if ev.Gap {
			p.logger.Warn().Msg("Capture gap, forcing utterance boundary")
			p.stream.SignalGap()
			continue
		}
		p.m.RecordFrame()
		p.stream.Feed(ev.Frame)
	}
}
