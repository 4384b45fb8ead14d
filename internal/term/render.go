// Package term renders chat messages for the terminal front end.
package term

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/segment"
)

var (
	userRoleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("28")).
			Padding(0, 1)

	assistantRoleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("208")).
				Padding(0, 1)

	codeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("242")).
			Padding(0, 1)

	languageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

// Renderer turns message content into terminal output: prose through
// glamour, fenced code in a bordered box captioned with its language.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a Renderer wrapping prose at width columns.
// With plain set, prose is printed as-is.
func NewRenderer(width int, plain bool) (*Renderer, error) {
	if plain {
		return &Renderer{}, nil
	}
	if width <= 0 {
		width = 80
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Renderer{md: md}, nil
}

// Content renders a message body span by span.
func (r *Renderer) Content(content string) string {
	var parts []string
	for span := range segment.Spans(content) {
		switch span.Kind {
		case segment.KindCode:
			parts = append(parts, r.code(span))
		default:
			parts = append(parts, r.prose(span.Body))
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) prose(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) code(span segment.Span) string {
	body := strings.TrimRight(span.Body, "\n")
	box := codeBoxStyle.Render(body)
	if span.Language == "" {
		return box
	}
	return languageStyle.Render(span.Language) + "\n" + box
}

// Message renders a role label followed by the content.
func (r *Renderer) Message(msg chat.Message) string {
	label := userRoleStyle.Render("You")
	if msg.Role == chat.RoleAssistant {
		label = assistantRoleStyle.Render("Assistant")
	}
	return label + "\n" + r.Content(msg.Content)
}

// Dim renders secondary text such as hints and status lines.
func Dim(s string) string {
	return dimStyle.Render(s)
}

// Error renders an error line.
func Error(s string) string {
	return errorStyle.Render(s)
}
