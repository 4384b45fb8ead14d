// Package session holds the conversation store of one chat session and the
// registry of live sessions.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/longkey1/webchat/internal/chat"
)

var (
	ErrReplyPending    = errors.New("a reply is already pending")
	ErrSessionNotFound = errors.New("session not found")
)

// State is the exchange state of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

func (s State) String() string {
	if s == StateAwaitingReply {
		return "awaiting_reply"
	}
	return "idle"
}

// Settings are the user-adjustable parameters sent with every remote call.
type Settings struct {
	Model        string   `json:"model"` // Format: "provider:model"
	SystemPrompt string   `json:"system_prompt"`
	Temperature  *float32 `json:"temperature,omitempty"`
	Preset       string   `json:"preset,omitempty"` // Name of the preset the settings came from (reference info)
}

// Turn is one pending exchange, returned by Begin and handed back to Complete.
type Turn struct {
	User     chat.Message
	History  []chat.Message // Messages before User, oldest first
	Settings Settings

	generation uint64
}

// Session is an ordered, append-only conversation. It is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	createdAt  time.Time
	updatedAt  time.Time
	settings   Settings
	messages   []chat.Message
	state      State
	generation uint64
	now        func() time.Time
}

// New creates an empty idle session with a fresh UUID.
func New(settings Settings) *Session {
	return newSession(uuid.New().String(), settings, time.Now)
}

func newSession(id string, settings Settings, now func() time.Time) *Session {
	t := now()
	return &Session{
		id:        id,
		createdAt: t,
		updatedAt: t,
		settings:  settings,
		now:       now,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Begin appends a user message and moves the session to StateAwaitingReply.
// The caller must pass non-blank text; validation happens one layer up.
func (s *Session) Begin(text string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAwaitingReply {
		return Turn{}, ErrReplyPending
	}

	msg := chat.Message{Role: chat.RoleUser, Content: text, Timestamp: s.now()}
	turn := Turn{
		User:       msg,
		History:    slices.Clone(s.messages),
		Settings:   s.settings,
		generation: s.generation,
	}
	s.messages = append(s.messages, msg)
	s.state = StateAwaitingReply
	s.updatedAt = msg.Timestamp
	return turn, nil
}

// Complete appends the assistant message for turn and returns the session to
// StateIdle. If the session was reset after turn began, nothing is appended
// and ok is false.
func (s *Session) Complete(turn Turn, content string) (msg chat.Message, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.generation != s.generation || s.state != StateAwaitingReply {
		return chat.Message{}, false
	}

	msg = chat.Message{Role: chat.RoleAssistant, Content: content, Timestamp: s.now()}
	s.messages = append(s.messages, msg)
	s.state = StateIdle
	s.updatedAt = msg.Timestamp
	return msg, true
}

// Reset empties the conversation and returns to StateIdle. A reply still in
// flight is discarded when it completes.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.state = StateIdle
	s.generation++
	s.updatedAt = s.now()
}

// Messages returns a copy of the conversation, oldest first.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings used by the next Begin.
func (s *Session) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.updatedAt = s.now()
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = s.now()
	s.mu.Unlock()
}

// Transcript returns a snapshot of the session suitable for saving.
func (s *Session) Transcript() *Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Transcript{
		ID:           s.id,
		Preset:       s.settings.Preset,
		SystemPrompt: s.settings.SystemPrompt,
		Model:        s.settings.Model,
		Temperature:  s.settings.Temperature,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		Messages:     slices.Clone(s.messages),
	}
}

// Restore rebuilds an idle session from a saved transcript. A trailing user
// message without a reply is dropped so that the conversation stays paired.
func Restore(t *Transcript) *Session {
	s := newSession(t.ID, Settings{
		Model:        t.Model,
		SystemPrompt: t.SystemPrompt,
		Temperature:  t.Temperature,
		Preset:       t.Preset,
	}, time.Now)
	s.createdAt = t.CreatedAt

	msgs := slices.Clone(t.Messages)
	if n := len(msgs); n > 0 && msgs[n-1].Role == chat.RoleUser {
		msgs = msgs[:n-1]
	}
	s.messages = msgs
	return s
}
