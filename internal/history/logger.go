package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// LoggerConfig tunes the history writer.
type LoggerConfig struct {
	// Retries after the first failed append.
	Retries int
	// RetryBackoff is multiplied by the attempt number.
	RetryBackoff time.Duration
}

// DefaultLoggerConfig returns the standard history settings.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Retries:      3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Logger drains translated utterances from its own delivery channel and
// appends one record per arrival. Persistence failures are retried and, on
// exhaustion, surfaced as warnings; they never stall the pipeline.
type Logger struct {
	in   <-chan model.TranslatedUtterance
	sink Sink
	cfg  LoggerConfig

	m      *metrics.Metrics
	logger zerolog.Logger
}

// NewLogger creates a history logger reading from in.
func NewLogger(in <-chan model.TranslatedUtterance, sink Sink, cfg LoggerConfig) *Logger {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &Logger{
		in:     in,
		sink:   sink,
		cfg:    cfg,
		m:      metrics.DefaultMetrics,
		logger: logging.WithComponent("history"),
	}
}

// Run appends records until the input channel closes, then closes the sink.
// The context bounds individual appends, not the drain: records already
// emitted by the dispatcher are flushed even during shutdown.
func (l *Logger) Run(ctx context.Context) error {
	defer func() {
		if err := l.sink.Close(); err != nil {
			l.logger.Error().Err(err).Msg("Closing history sink failed")
		}
	}()

	for tu := range l.in {
		l.append(ctx, model.NewHistoryRecord(tu, time.Now()))
	}
	return nil
}

func (l *Logger) append(ctx context.Context, rec model.HistoryRecord) {
	start := time.Now()
	attempts := 1 + l.cfg.Retries

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = l.sink.Append(ctx, rec); err == nil {
			l.m.RecordHistoryAppend(nil, time.Since(start).Seconds())
			return
		}
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * l.cfg.RetryBackoff)
		}
	}

	// Persistence faults never stop the pipeline.
	l.m.RecordHistoryAppend(err, time.Since(start).Seconds())
	l.logger.Warn().
		Err(err).
		Uint64("sequenceNo", rec.SequenceNo).
		Msg("History append failed after retries, record lost")
}
