package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/segment"
	"github.com/longkey1/webchat/internal/chat/session"
)

type spanJSON struct {
	Kind     string `json:"kind"`
	Language string `json:"language,omitempty"`
	Body     string `json:"body"`
}

type messageJSON struct {
	Role      chat.Role  `json:"role"`
	Content   string     `json:"content"`
	Spans     []spanJSON `json:"spans"`
	Error     bool       `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	User      messageJSON `json:"user"`
	Assistant messageJSON `json:"assistant"`
	Discarded bool        `json:"discarded,omitempty"`
}

func toMessageJSON(msg chat.Message) messageJSON {
	spans := []spanJSON{}
	for span := range segment.Spans(msg.Content) {
		spans = append(spans, spanJSON{Kind: span.Kind.String(), Language: span.Language, Body: span.Body})
	}
	return messageJSON{
		Role:      msg.Role,
		Content:   msg.Content,
		Spans:     spans,
		Error:     msg.Role == chat.RoleAssistant && conversation.IsErrorContent(msg.Content),
		Timestamp: msg.Timestamp,
	}
}

func toSendResponse(res conversation.Result) sendResponse {
	return sendResponse{
		User:      toMessageJSON(res.User),
		Assistant: toMessageJSON(res.Assistant),
		Discarded: res.Discarded,
	}
}

// submitStatus maps the errors Submit returns for rejected input.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrMessageTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrReplyPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListMessages(c *gin.Context) {
	sess := currentSession(c)
	msgs := sess.Messages()
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  sess.ID(),
		"state":    sess.State().String(),
		"settings": sess.Settings(),
		"messages": out,
	})
}

func (s *Server) bindSend(c *gin.Context) (string, bool) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", false
	}
	return req.Text, true
}

func (s *Server) handlePostMessage(c *gin.Context) {
	text, ok := s.bindSend(c)
	if !ok {
		return
	}

	res, err := s.service.Submit(c.Request.Context(), currentSession(c), text)
	if err != nil {
		c.JSON(submitStatus(err), gin.H{"error": err.Error()})
		return
	}
	if res.Outcome.Failed() {
		_ = c.Error(res.Outcome.Err)
	}
	c.JSON(http.StatusOK, toSendResponse(res))
}

// handleStreamMessage answers with server-sent events: "chunk" for each piece
// of reply text, then "done" with the stored messages, or "error" when the
// remote call failed. Rejected input is answered with plain JSON.
func (s *Server) handleStreamMessage(c *gin.Context) {
	text, ok := s.bindSend(c)
	if !ok {
		return
	}
	sess := currentSession(c)
	if err := s.service.Validate(text); err != nil {
		c.JSON(submitStatus(err), gin.H{"error": err.Error()})
		return
	}
	if sess.State() == session.StateAwaitingReply {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrReplyPending.Error()})
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	res, err := s.service.SubmitStream(c.Request.Context(), sess, text, func(chunk string) error {
		start()
		c.SSEvent("chunk", gin.H{"text": chunk})
		c.Writer.Flush()
		return c.Request.Context().Err()
	})
	if err != nil {
		// Lost a race with another submission on the same session.
		if !started {
			c.JSON(submitStatus(err), gin.H{"error": err.Error()})
		}
		return
	}

	start()
	if res.Outcome.Failed() {
		_ = c.Error(res.Outcome.Err)
		c.SSEvent("error", gin.H{"error": res.Outcome.Err.Error(), "message": toMessageJSON(res.Assistant)})
	}
	c.SSEvent("done", toSendResponse(res))
	c.Writer.Flush()
}

func (s *Server) handleResetMessages(c *gin.Context) {
	currentSession(c).Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleModels(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusOK, gin.H{"default": firstOrEmpty(s.models), "models": s.models})
		return
	}
	models, err := s.catalog(c.Request.Context())
	if err != nil {
		if len(models) == 0 {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		s.log.WithError(err).Warn("some providers could not list models")
	}
	c.JSON(http.StatusOK, gin.H{
		"default":   firstOrEmpty(s.models),
		"models":    s.models,
		"available": models,
	})
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
