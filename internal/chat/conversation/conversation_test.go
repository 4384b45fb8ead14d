package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/sirupsen/logrus"
)

// fakeProvider records the request and can observe the session mid-call.
type fakeProvider struct {
	reply  string
	err    error
	during func()
	got    chat.Request
}

func (f *fakeProvider) Generate(ctx context.Context, req chat.Request) (string, error) {
	f.got = req
	if f.during != nil {
		f.during()
	}
	return f.reply, f.err
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	return nil, nil
}

type fakeStreamer struct {
	fakeProvider
	chunks []string
}

func (f *fakeStreamer) GenerateStream(ctx context.Context, req chat.Request, onChunk func(string) error) (string, error) {
	f.got = req
	var b strings.Builder
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return b.String(), err
		}
		b.WriteString(c)
	}
	return b.String(), f.err
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSession() *session.Session {
	temp := float32(0.7)
	return session.New(session.Settings{Model: "fake:model", SystemPrompt: "be nice", Temperature: &temp})
}

func TestSubmitSuccess(t *testing.T) {
	sess := newSession()
	p := &fakeProvider{reply: "hi!"}
	p.during = func() {
		msgs := sess.Messages()
		if len(msgs) != 1 || msgs[0].Role != chat.RoleUser || msgs[0].Content != "hello" {
			t.Errorf("store during call = %+v", msgs)
		}
		if sess.State() != session.StateAwaitingReply {
			t.Errorf("State() during call = %v", sess.State())
		}
	}
	svc := NewService(p, WithLogger(quietLogger()))

	res, err := svc.Submit(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Outcome.Failed() || res.Assistant.Content != "hi!" || res.User.Content != "hello" {
		t.Errorf("Submit() = %+v", res)
	}

	msgs := sess.Messages()
	if len(msgs) != 2 || msgs[1].Role != chat.RoleAssistant {
		t.Errorf("store after call = %+v", msgs)
	}
	if sess.State() != session.StateIdle {
		t.Errorf("State() after call = %v", sess.State())
	}

	if p.got.Model != "fake:model" || p.got.SystemPrompt != "be nice" || p.got.Text != "hello" {
		t.Errorf("request = %+v", p.got)
	}
	if p.got.Temperature == nil || *p.got.Temperature != 0.7 {
		t.Errorf("request temperature = %v", p.got.Temperature)
	}
	if len(p.got.History) != 0 {
		t.Errorf("request history = %+v, want empty", p.got.History)
	}
}

func TestSubmitHistoryExcludesNewMessage(t *testing.T) {
	sess := newSession()
	p := &fakeProvider{reply: "r"}
	svc := NewService(p, WithLogger(quietLogger()))

	svc.Submit(context.Background(), sess, "first")
	svc.Submit(context.Background(), sess, "second")

	h := p.got.History
	if len(h) != 2 {
		t.Fatalf("history = %+v, want 2 messages", h)
	}
	if h[0].Role != chat.RoleUser || h[0].Content != "first" || h[1].Role != chat.RoleAssistant || h[1].Content != "r" {
		t.Errorf("history = %+v", h)
	}
	if sess.Len() != 4 {
		t.Errorf("Len() = %d, want 4", sess.Len())
	}
}

func TestSubmitFailureBecomesMessage(t *testing.T) {
	sess := newSession()
	svc := NewService(&fakeProvider{err: &chat.APIError{Provider: "fake", StatusCode: 401, Body: "bad key"}}, WithLogger(quietLogger()))

	res, err := svc.Submit(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("Submit() error = %v, remote failures must not propagate", err)
	}
	if !res.Outcome.Failed() {
		t.Error("Outcome.Failed() = false")
	}
	want := "An error occurred: fake API error (HTTP 401): bad key"
	if res.Assistant.Content != want {
		t.Errorf("assistant content = %q, want %q", res.Assistant.Content, want)
	}
	if sess.Len() != 2 || sess.State() != session.StateIdle {
		t.Errorf("after failure: Len() = %d, State() = %v", sess.Len(), sess.State())
	}

	// The conversation stays usable.
	svc = NewService(&fakeProvider{reply: "ok"}, WithLogger(quietLogger()))
	if res, _ := svc.Submit(context.Background(), sess, "again"); res.Assistant.Content != "ok" {
		t.Errorf("next Submit() = %+v", res)
	}
}

func TestSubmitEmptyReplyUsesPlaceholder(t *testing.T) {
	sess := newSession()
	svc := NewService(&fakeProvider{reply: "  \n"}, WithLogger(quietLogger()))

	res, err := svc.Submit(context.Background(), sess, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if res.Assistant.Content != NoReplyPlaceholder {
		t.Errorf("assistant content = %q", res.Assistant.Content)
	}
}

func TestSubmitRejectsWithoutTransition(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{name: "empty", text: "", wantErr: ErrEmptyMessage},
		{name: "whitespace", text: " \n\t", wantErr: ErrEmptyMessage},
		{name: "too long", text: strings.Repeat("x", 11), wantErr: ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newSession()
			p := &fakeProvider{reply: "unused"}
			svc := NewService(p, WithMaxMessageBytes(10), WithLogger(quietLogger()))

			// Seed one exchange so "unchanged" means length N stays N.
			svc.Submit(context.Background(), sess, "seed")
			before := sess.Len()

			_, err := svc.Submit(context.Background(), sess, tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
			if sess.Len() != before || sess.State() != session.StateIdle {
				t.Errorf("store changed: Len() = %d (was %d), State() = %v", sess.Len(), before, sess.State())
			}
		})
	}
}

func TestSubmitResetWhilePending(t *testing.T) {
	sess := newSession()
	p := &fakeProvider{reply: "late"}
	p.during = sess.Reset
	svc := NewService(p, WithLogger(quietLogger()))

	res, err := svc.Submit(context.Background(), sess, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Discarded {
		t.Error("Result.Discarded = false")
	}
	if sess.Len() != 0 || sess.State() != session.StateIdle {
		t.Errorf("after reset: Len() = %d, State() = %v", sess.Len(), sess.State())
	}
}

func TestSubmitWhilePending(t *testing.T) {
	sess := newSession()
	if _, err := sess.Begin("pending"); err != nil {
		t.Fatal(err)
	}
	svc := NewService(&fakeProvider{reply: "x"}, WithLogger(quietLogger()))

	if _, err := svc.Submit(context.Background(), sess, "hello"); !errors.Is(err, session.ErrReplyPending) {
		t.Errorf("Submit() error = %v, want ErrReplyPending", err)
	}
	if sess.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sess.Len())
	}
}

func TestSubmitStream(t *testing.T) {
	sess := newSession()
	svc := NewService(&fakeStreamer{chunks: []string{"Hel", "lo", "!"}}, WithLogger(quietLogger()))

	var chunks []string
	res, err := svc.SubmitStream(context.Background(), sess, "hi", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(chunks, "|") != "Hel|lo|!" {
		t.Errorf("chunks = %v", chunks)
	}
	if res.Assistant.Content != "Hello!" || sess.Len() != 2 {
		t.Errorf("SubmitStream() = %+v, Len() = %d", res, sess.Len())
	}
}

func TestSubmitStreamFallback(t *testing.T) {
	sess := newSession()
	svc := NewService(&fakeProvider{reply: "whole"}, WithLogger(quietLogger()))

	var chunks []string
	res, err := svc.SubmitStream(context.Background(), sess, "hi", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "whole" || res.Assistant.Content != "whole" {
		t.Errorf("chunks = %v, result = %+v", chunks, res)
	}
}

func TestSubmitStreamSinkError(t *testing.T) {
	sess := newSession()
	svc := NewService(&fakeStreamer{chunks: []string{"a", "b"}}, WithLogger(quietLogger()))

	res, err := svc.SubmitStream(context.Background(), sess, "hi", func(c string) error {
		return errors.New("client went away")
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Outcome.Failed() || !strings.Contains(res.Assistant.Content, "client went away") {
		t.Errorf("SubmitStream() = %+v", res)
	}
	if sess.Len() != 2 {
		t.Errorf("Len() = %d, want 2", sess.Len())
	}
}

func TestOutcomeContent(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{name: "text", outcome: Outcome{Text: "answer"}, want: "answer"},
		{name: "empty", outcome: Outcome{}, want: NoReplyPlaceholder},
		{name: "error", outcome: Outcome{Err: errors.New("timeout")}, want: "An error occurred: timeout"},
		{name: "error wins over text", outcome: Outcome{Text: "partial", Err: errors.New("eof")}, want: "An error occurred: eof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Content(); got != tt.want {
				t.Errorf("Content() = %q, want %q", got, tt.want)
			}
		})
	}
}
