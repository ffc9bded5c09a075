// Package google provides a Google Cloud Speech-to-Text recognizer session.
package google

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-subtitle-pipeline/internal/asr"
	"live-subtitle-pipeline/internal/model"
)

// Config holds recognizer settings for a session.
type Config struct {
	LanguageCode    string
	SampleRateHertz int32
}

// DefaultConfig returns settings for 16kHz 16-bit mono capture.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHertz: 16000,
	}
}

// Session implements asr.Session using Google Cloud streaming recognition.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Session struct {
	client *speech.Client
	cfg    Config
	stream speechpb.Speech_StreamingRecognizeClient
	cb     asr.Callback
}

// NewSession creates a Google recognizer session.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, cfg: cfg}, nil
}

// Factory returns an asr.SessionFactory producing fresh Google sessions, one
// per reconnect attempt.
func Factory(cfg Config) asr.SessionFactory {
	return func(ctx context.Context) (asr.Session, error) {
		return NewSession(ctx, cfg)
	}
}

// Start opens the streaming session, sends the recognition config, and spawns
// the receive loop.
func (s *Session) Start(ctx context.Context, cb asr.Callback) error {
	stream, err := s.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}
	s.stream = stream
	s.cb = cb

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: s.cfg.SampleRateHertz,
					LanguageCode:    s.cfg.LanguageCode,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		return err
	}

	go s.listen()
	return nil
}

// SendFrame sends one frame's samples to the recognizer.
func (s *Session) SendFrame(ctx context.Context, frame model.AudioFrame) error {
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: frame.Samples,
		},
	})
}

// Close half-closes the stream and releases the client.
func (s *Session) Close() error {
	var err error
	if s.stream != nil {
		err = s.stream.CloseSend()
	}
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// listen receives transcript responses and invokes callbacks until the
// stream fails.
func (s *Session) listen() {
	var lastEndMs int64
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			s.cb.OnError(err)
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			endMs := lastEndMs
			if t := r.ResultEndTime; t != nil {
				endMs = t.Seconds*1000 + int64(t.Nanos)/1e6
			}
			if r.IsFinal {
				s.cb.OnFinal(alt.Transcript, lastEndMs, endMs)
				lastEndMs = endMs
			} else {
				s.cb.OnPartial(alt.Transcript, lastEndMs, endMs)
			}
		}
	}
}

// IsTransient reports whether a session error is worth an immediate
// reconnect (as opposed to a credential or configuration problem).
func IsTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	}
	return false
}
