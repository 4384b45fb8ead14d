package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/preset"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/term"
	"github.com/spf13/cobra"
)

var (
	chatModel    string
	chatPreset   string
	chatSystem   string
	chatResume   string
	chatName     string
	chatPlain    bool
	chatStream   bool
	chatAutosave bool
	chatWidth    int
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model in the terminal",
	Long: `Start an interactive conversation in the terminal using the same engine as
the web front end. Replies are rendered with prose formatted as markdown and
fenced code shown in a box labelled with its language.

Type '/help' for commands, '/exit' or Ctrl+D to quit.

A conversation can be written to disk with '/save' and continued later with
--resume. The ID can be a short ID (minimum 4 characters), full UUID, or
"latest" for the most recently saved transcript.

Examples:
  webchat chat
  webchat chat --model openai:gpt-4o --stream
  webchat chat --preset reviewer
  webchat chat --resume latest`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		dir, err := transcriptDir(cfg)
		if err != nil {
			return err
		}

		sess, err := chatSession(cmd, cfg, dir)
		if err != nil {
			return err
		}

		router, err := newRouter(cfg)
		if err != nil {
			return fmt.Errorf("creating providers: %w", err)
		}
		model := sess.Settings().Model
		if _, err := router.Lookup(model); err != nil {
			return fmt.Errorf("model %s: %w", model, err)
		}
		if err := cfg.CheckCredentialsFor(model); err != nil {
			return err
		}

		renderer, err := term.NewRenderer(chatWidth, chatPlain)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		r := &repl{
			svc:      conversation.NewService(router, conversation.WithMaxMessageBytes(cfg.MaxMessageBytes), conversation.WithLogger(log)),
			sess:     sess,
			render:   renderer,
			in:       os.Stdin,
			out:      os.Stdout,
			errOut:   os.Stderr,
			dir:      dir,
			name:     chatName,
			stream:   chatStream,
			autosave: chatAutosave,
			spinner:  !chatStream,
		}
		return r.run(ctx)
	},
}

func transcriptDir(cfg *config.Config) (string, error) {
	if cfg.TranscriptDir != "" {
		return cfg.TranscriptDir, nil
	}
	dir, err := session.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("getting transcript directory: %w", err)
	}
	return dir, nil
}

// chatSession resumes a transcript or starts a new session. Settings are
// applied with priority: flag > preset > config file.
func chatSession(cmd *cobra.Command, cfg *config.Config, dir string) (*session.Session, error) {
	if chatResume != "" {
		if chatPreset != "" {
			return nil, errors.New("cannot use --preset with --resume")
		}
		t, err := session.FindTranscript(dir, chatResume)
		if err != nil {
			return nil, fmt.Errorf("finding transcript: %w", err)
		}
		if chatName == "" {
			chatName = t.Name
		}
		sess := session.Restore(t)
		if cmd.Flags().Changed("model") {
			st := sess.Settings()
			st.Model = chatModel
			sess.SetSettings(st)
		}
		log.WithField("transcript", t.GetShortID()).Debug("resuming conversation")
		return sess, nil
	}

	settings := defaultSettings(cfg)
	if chatPreset != "" {
		p, err := preset.Find(chatPreset, cfg.PresetDirs)
		if err != nil {
			return nil, fmt.Errorf("loading preset: %w", err)
		}
		settings = p.Apply(settings)
	}
	if cmd.Flags().Changed("model") {
		if _, _, err := chat.ParseModelString(chatModel); err != nil {
			return nil, fmt.Errorf("invalid model from flag: %w", err)
		}
		settings.Model = chatModel
	}
	if cmd.Flags().Changed("system") {
		settings.SystemPrompt = chatSystem
	}
	return session.New(settings), nil
}

// repl is the line-based terminal conversation.
type repl struct {
	svc      *conversation.Service
	sess     *session.Session
	render   *term.Renderer
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	dir      string
	name     string
	stream   bool
	autosave bool
	spinner  bool
}

func (r *repl) run(ctx context.Context) error {
	r.header()

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.errOut, "You> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			fmt.Fprintln(r.errOut, "\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case strings.HasPrefix(input, "//"):
			input = input[1:]
		case strings.HasPrefix(input, "/"):
			if !r.command(input) {
				return nil
			}
			continue
		}

		if err := r.send(ctx, input); err != nil {
			fmt.Fprintln(r.errOut, term.Error("Error: "+err.Error()))
		}
		if ctx.Err() != nil {
			fmt.Fprintln(r.errOut, "\nInterrupted.")
			return nil
		}
	}
}

func (r *repl) header() {
	st := r.sess.Settings()
	fmt.Fprintf(r.errOut, "\n=== webchat [%s] ===\n", shortID(r.sess.ID()))
	fmt.Fprintf(r.errOut, "Model: %s\n", st.Model)
	if st.Preset != "" {
		fmt.Fprintf(r.errOut, "Preset: %s\n", st.Preset)
	}
	if n := r.sess.Len(); n > 0 {
		fmt.Fprintf(r.errOut, "Resumed with %d messages\n", n)
	}
	fmt.Fprintln(r.errOut, term.Dim("Type '/help' for commands, '/exit' or 'Ctrl+D' to quit"))
	fmt.Fprintln(r.errOut)
}

func (r *repl) send(ctx context.Context, text string) error {
	var (
		res conversation.Result
		err error
	)

	if r.stream {
		fmt.Fprintln(r.out)
		started := false
		res, err = r.svc.SubmitStream(ctx, r.sess, text, func(chunk string) error {
			started = true
			_, werr := io.WriteString(r.out, chunk)
			return werr
		})
		if err != nil {
			return err
		}
		if !started || res.Outcome.Failed() {
			// Nothing or only part of the reply was shown.
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, r.render.Message(res.Assistant))
		}
		fmt.Fprintln(r.out)
	} else {
		done := make(chan struct{})
		stopped := make(chan struct{})
		if r.spinner {
			go showSpinner(r.errOut, done, stopped)
		} else {
			close(stopped)
		}
		res, err = r.svc.Submit(ctx, r.sess, text)
		close(done)
		<-stopped
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "\n%s\n\n", r.render.Message(res.Assistant))
	}

	if r.autosave {
		if err := r.save(); err != nil {
			fmt.Fprintln(r.errOut, term.Error("Warning: failed to save transcript: "+err.Error()))
		}
	}
	return nil
}

// showSpinner displays a spinner animation until done is closed.
func showSpinner(w io.Writer, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(frames) {
		fmt.Fprintf(w, "\r%s Waiting for reply...", frames[i])
		select {
		case <-done:
			fmt.Fprint(w, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

func (r *repl) save() error {
	t := r.sess.Transcript()
	t.Name = r.name
	return session.SaveTranscript(r.dir, t)
}

// command handles a slash command. It returns false to end the conversation.
func (r *repl) command(input string) bool {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch name {
	case "/help", "/h":
		fmt.Fprintln(r.errOut, "\nAvailable commands:")
		fmt.Fprintln(r.errOut, "  /help, /h         - Show this help message")
		fmt.Fprintln(r.errOut, "  /info, /i         - Show conversation information")
		fmt.Fprintln(r.errOut, "  /reset, /r        - Start over with an empty conversation")
		fmt.Fprintln(r.errOut, "  /save [name]      - Save the conversation as a transcript")
		fmt.Fprintln(r.errOut, "  /history          - Show the conversation so far")
		fmt.Fprintln(r.errOut, "  /exit, /quit, /q  - Exit")
		fmt.Fprintln(r.errOut, "  //text            - Send text starting with '/'")
		fmt.Fprintln(r.errOut, "  Ctrl+D            - Exit")
		fmt.Fprintln(r.errOut)

	case "/info", "/i":
		st := r.sess.Settings()
		fmt.Fprintln(r.errOut, "\nConversation:")
		fmt.Fprintf(r.errOut, "  ID: %s\n", r.sess.ID())
		if r.name != "" {
			fmt.Fprintf(r.errOut, "  Name: %s\n", r.name)
		}
		fmt.Fprintf(r.errOut, "  Model: %s\n", st.Model)
		if st.Temperature != nil {
			fmt.Fprintf(r.errOut, "  Temperature: %.1f\n", *st.Temperature)
		}
		if st.Preset != "" {
			fmt.Fprintf(r.errOut, "  Preset: %s\n", st.Preset)
		}
		if st.SystemPrompt != "" {
			fmt.Fprintf(r.errOut, "  System prompt: %s\n", firstLine(st.SystemPrompt))
		}
		fmt.Fprintf(r.errOut, "  Messages: %d\n", r.sess.Len())
		fmt.Fprintf(r.errOut, "  Started: %s\n", r.sess.CreatedAt().Format("2006-01-02 15:04:05"))
		fmt.Fprintln(r.errOut)

	case "/reset", "/r":
		r.sess.Reset()
		fmt.Fprintln(r.errOut, term.Dim("Conversation cleared."))

	case "/save":
		if arg != "" {
			r.name = arg
		}
		if err := r.save(); err != nil {
			fmt.Fprintln(r.errOut, term.Error("Error: "+err.Error()))
			break
		}
		fmt.Fprintf(r.errOut, "Saved transcript %s. Continue later with:\n  webchat chat --resume %s\n", shortID(r.sess.ID()), shortID(r.sess.ID()))

	case "/history":
		for _, msg := range r.sess.Messages() {
			fmt.Fprintf(r.out, "%s\n\n", r.render.Message(msg))
		}

	case "/exit", "/quit", "/q":
		fmt.Fprintln(r.errOut, "Goodbye!")
		return false

	default:
		fmt.Fprintf(r.errOut, "Unknown command: %s (type '/help' for available commands)\n", name)
	}
	return true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " ..."
	}
	return line
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to use (format: provider:model, e.g., openai:gpt-4o)")
	chatCmd.Flags().StringVarP(&chatPreset, "preset", "p", "", "Name of the preset to start from")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt for this conversation")
	chatCmd.Flags().StringVarP(&chatResume, "resume", "r", "", "Transcript ID to continue (short or full UUID, or 'latest')")
	chatCmd.Flags().StringVar(&chatName, "name", "", "Name stored with saved transcripts")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Print replies without markdown formatting")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "Print replies as they arrive")
	chatCmd.Flags().BoolVar(&chatAutosave, "autosave", false, "Save the transcript after every reply")
	chatCmd.Flags().IntVar(&chatWidth, "width", 80, "Wrap width for formatted replies")
}
