// Package conversation runs one exchange with the remote model: it moves a
// session through idle -> awaiting_reply -> idle and turns every remote
// failure into an assistant message.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/sirupsen/logrus"
)

const (
	NoReplyPlaceholder = "Could not get a reply."
	errorPrefix        = "An error occurred: "
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

// Outcome is the result of one remote call: either reply text or a failure.
type Outcome struct {
	Text string
	Err  error
}

// Failed reports whether the remote call failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Content returns the assistant message content for the outcome.
func (o Outcome) Content() string {
	if o.Err != nil {
		return errorPrefix + o.Err.Error()
	}
	if strings.TrimSpace(o.Text) == "" {
		return NoReplyPlaceholder
	}
	return o.Text
}

// IsErrorContent reports whether an assistant message records a failed call.
func IsErrorContent(content string) bool {
	return strings.HasPrefix(content, errorPrefix)
}

// Result describes a finished exchange.
type Result struct {
	User      chat.Message
	Assistant chat.Message
	Outcome   Outcome
	Discarded bool // The session was reset while the reply was pending
}

// Service submits user text to the model selected by each session's settings.
type Service struct {
	provider        chat.Provider
	maxMessageBytes int
	log             logrus.FieldLogger
}

type Option func(*Service)

// WithMaxMessageBytes rejects messages longer than n bytes. Zero disables the check.
func WithMaxMessageBytes(n int) Option {
	return func(s *Service) {
		s.maxMessageBytes = n
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService returns a Service calling provider, usually a *chat.Router.
func NewService(provider chat.Provider, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxMessageBytes returns the configured size limit.
func (s *Service) MaxMessageBytes() int {
	return s.maxMessageBytes
}

// Validate checks text the way Submit does without touching any session.
func (s *Service) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if s.maxMessageBytes > 0 && len(text) > s.maxMessageBytes {
		return fmt.Errorf("%w (%d bytes, limit %d)", ErrMessageTooLong, len(text), s.maxMessageBytes)
	}
	return nil
}

// Submit appends text as a user message, calls the model and appends its
// reply. Errors are returned only for input that causes no state change
// (ErrEmptyMessage, ErrMessageTooLong, session.ErrReplyPending); remote
// failures end up in Result.Outcome and in the assistant message.
func (s *Service) Submit(ctx context.Context, sess *session.Session, text string) (Result, error) {
	return s.exchange(ctx, sess, text, func(ctx context.Context, req chat.Request) (string, error) {
		return s.provider.Generate(ctx, req)
	})
}

// SubmitStream is Submit with incremental delivery: onChunk receives reply
// text as it arrives. Providers that cannot stream deliver one chunk. An
// error from onChunk aborts the call and is recorded as a failure.
func (s *Service) SubmitStream(ctx context.Context, sess *session.Session, text string, onChunk func(chunk string) error) (Result, error) {
	streamer, ok := s.provider.(chat.Streamer)
	return s.exchange(ctx, sess, text, func(ctx context.Context, req chat.Request) (string, error) {
		if ok {
			return streamer.GenerateStream(ctx, req, onChunk)
		}
		reply, err := s.provider.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		if reply != "" {
			if err := onChunk(reply); err != nil {
				return "", err
			}
		}
		return reply, nil
	})
}

func (s *Service) exchange(ctx context.Context, sess *session.Session, text string, call func(context.Context, chat.Request) (string, error)) (Result, error) {
	if err := s.Validate(text); err != nil {
		return Result{}, err
	}

	turn, err := sess.Begin(text)
	if err != nil {
		return Result{}, err
	}

	req := chat.Request{
		Model:        turn.Settings.Model,
		SystemPrompt: turn.Settings.SystemPrompt,
		Temperature:  turn.Settings.Temperature,
		History:      turn.History,
		Text:         text,
	}

	log := s.log.WithFields(logrus.Fields{
		"session": sess.ID(),
		"model":   req.Model,
		"history": len(req.History),
	})
	log.Debug("sending message")

	start := time.Now()
	reply, err := call(ctx, req)
	outcome := Outcome{Text: reply, Err: err}

	log = log.WithField("duration", time.Since(start).Round(time.Millisecond))
	if outcome.Failed() {
		log.WithError(err).Warn("remote call failed")
	} else {
		log.WithField("reply_bytes", len(reply)).Debug("received reply")
	}

	assistant, ok := sess.Complete(turn, outcome.Content())
	if !ok {
		log.Debug("session reset while waiting, reply discarded")
	}

	return Result{
		User:      turn.User,
		Assistant: assistant,
		Outcome:   outcome,
		Discarded: !ok,
	}, nil
}
