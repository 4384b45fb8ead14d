package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/echo"
	"github.com/longkey1/webchat/internal/term"
	"github.com/sirupsen/logrus"
)

func newTestREPL(t *testing.T, input string, stream bool) (*repl, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	renderer, err := term.NewRenderer(80, true)
	if err != nil {
		t.Fatal(err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	var out, errOut bytes.Buffer
	r := &repl{
		svc:    conversation.NewService(echo.NewProvider(), conversation.WithLogger(quiet)),
		sess:   session.New(session.Settings{Model: "echo:test"}),
		render: renderer,
		in:     strings.NewReader(input),
		out:    &out,
		errOut: &errOut,
		dir:    t.TempDir(),
		stream: stream,
	}
	return r, &out, &errOut
}

func TestREPLConversation(t *testing.T) {
	r, out, errOut := newTestREPL(t, "hello\n\n//code x := 1\n/info\n/exit\nnot read\n", false)
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"[test] You said: hello (turn 1)", "x := 1", "Assistant"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "```") {
		t.Errorf("fences not rendered:\n%s", out.String())
	}
	if !strings.Contains(errOut.String(), "Messages: 4") || !strings.Contains(errOut.String(), "Goodbye!") {
		t.Errorf("stderr:\n%s", errOut.String())
	}
	if r.sess.Len() != 4 {
		t.Errorf("messages = %d, want 4", r.sess.Len())
	}
}

func TestREPLStream(t *testing.T) {
	r, out, _ := newTestREPL(t, "one two three\n", true)
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "[test] You said: one two three (turn 1)") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestREPLCommands(t *testing.T) {
	r, out, errOut := newTestREPL(t, "first\n/save notes\n/reset\n//slash\n/bogus\n/history\n", false)
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	saved, err := session.FindTranscript(r.dir, "latest")
	if err != nil {
		t.Fatalf("transcript not saved: %v", err)
	}
	if saved.Name != "notes" || saved.MessageCount() != 2 {
		t.Errorf("saved %q with %d messages", saved.Name, saved.MessageCount())
	}

	// After /reset only the "/slash" exchange remains.
	msgs := r.sess.Messages()
	if len(msgs) != 2 || msgs[0].Content != "/slash" {
		t.Errorf("messages after reset = %+v", msgs)
	}
	if !strings.Contains(errOut.String(), "Unknown command: /bogus") {
		t.Errorf("stderr:\n%s", errOut.String())
	}
	if strings.Count(out.String(), "You said: /slash") < 2 {
		t.Errorf("/history did not replay the conversation:\n%s", out.String())
	}
}

func TestREPLRejectsTooLong(t *testing.T) {
	r, _, errOut := newTestREPL(t, strings.Repeat("a", 20)+"\n", false)
	r.svc = conversation.NewService(echo.NewProvider(), conversation.WithMaxMessageBytes(10))
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.sess.Len() != 0 || !strings.Contains(errOut.String(), "too long") {
		t.Errorf("len %d, stderr:\n%s", r.sess.Len(), errOut.String())
	}
}
