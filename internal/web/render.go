package web

import (
	"bytes"
	"html/template"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/segment"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// spanView is one span ready for the page template.
type spanView struct {
	Code     bool
	Language string
	Body     string        // code spans
	HTML     template.HTML // text spans
}

type messageView struct {
	Role   string
	User   bool
	Time   string
	Spans  []spanView
	Failed bool
}

// markdown renders text spans. Raw HTML in replies is escaped, not passed through.
type markdown struct {
	md goldmark.Markdown
}

func newMarkdown() *markdown {
	return &markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (m *markdown) render(text string) template.HTML {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (m *markdown) spans(content string) []spanView {
	var views []spanView
	for span := range segment.Spans(content) {
		if span.Kind == segment.KindCode {
			views = append(views, spanView{Code: true, Language: span.Language, Body: span.Body})
			continue
		}
		views = append(views, spanView{HTML: m.render(span.Body)})
	}
	return views
}

func (m *markdown) messages(msgs []chat.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView{
			Role:   string(msg.Role),
			User:   msg.Role == chat.RoleUser,
			Time:   msg.Timestamp.Format("15:04"),
			Spans:  m.spans(msg.Content),
			Failed: msg.Role == chat.RoleAssistant && conversation.IsErrorContent(msg.Content),
		})
	}
	return views
}
