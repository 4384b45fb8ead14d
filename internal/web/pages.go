package web

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/preset"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/sirupsen/logrus"
)

// Notice codes carried in the redirect after a rejected form post.
const (
	noticeEmpty       = "empty"
	noticeTooLong     = "too_long"
	noticePending     = "pending"
	noticeRateLimited = "rate_limited"
	noticeSettings    = "bad_settings"
	noticePreset      = "bad_preset"
	noticeLogin       = "bad_password"
)

var noticeText = map[string]string{
	noticeEmpty:       "Type a message first.",
	noticeTooLong:     "That message is too long to send.",
	noticePending:     "Still waiting for the previous reply.",
	noticeRateLimited: "Too many messages, wait a moment and try again.",
	noticeSettings:    "Those settings were not applied.",
	noticePreset:      "That preset could not be loaded.",
	noticeLogin:       "Wrong password.",
}

type settingsView struct {
	Model        string
	Temperature  string
	SystemPrompt string
	Preset       string
}

type modelOption struct {
	Value    string
	Selected bool
}

type indexView struct {
	Messages    []messageView
	Pending     bool
	Notice      string
	Settings    settingsView
	Models      []modelOption
	Presets     []string
	MaxBytes    int
	AuthEnabled bool
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleIndex(c *gin.Context) {
	sess := currentSession(c)
	settings := sess.Settings()

	view := indexView{
		Messages:    s.md.messages(sess.Messages()),
		Pending:     sess.State() == session.StateAwaitingReply,
		Notice:      noticeText[c.Query("notice")],
		Settings:    viewSettings(settings),
		Models:      s.modelOptions(settings.Model),
		Presets:     s.presetNames(),
		MaxBytes:    s.service.MaxMessageBytes(),
		AuthEnabled: s.auth != nil,
	}
	c.HTML(http.StatusOK, "index.html", view)
}

func (s *Server) handleChat(c *gin.Context) {
	sess := currentSession(c)
	text := c.PostForm("message")

	res, err := s.service.Submit(c.Request.Context(), sess, text)
	if err != nil {
		s.redirectNotice(c, submitNotice(err))
		return
	}
	if res.Outcome.Failed() {
		_ = c.Error(res.Outcome.Err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func submitNotice(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return noticeEmpty
	case errors.Is(err, conversation.ErrMessageTooLong):
		return noticeTooLong
	case errors.Is(err, session.ErrReplyPending):
		return noticePending
	default:
		return ""
	}
}

func (s *Server) handleReset(c *gin.Context) {
	currentSession(c).Reset()
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleSettings(c *gin.Context) {
	sess := currentSession(c)
	settings, err := s.parseSettings(sess.Settings(), c.PostForm("model"), c.PostForm("temperature"), c.PostForm("system_prompt"))
	if err != nil {
		s.log.WithError(err).WithField("session", sess.ID()).Debug("settings rejected")
		s.redirectNotice(c, noticeSettings)
		return
	}
	sess.SetSettings(settings)
	c.Redirect(http.StatusSeeOther, "/")
}

// parseSettings validates form values against the picker and the 0-2
// temperature range. Empty values keep the current setting.
func (s *Server) parseSettings(cur session.Settings, model, temperature, system string) (session.Settings, error) {
	next := cur
	if model != "" {
		if !slices.Contains(s.models, model) {
			return cur, fmt.Errorf("model %q is not offered", model)
		}
		next.Model = model
	}
	if temperature != "" {
		t, err := strconv.ParseFloat(temperature, 32)
		if err != nil {
			return cur, fmt.Errorf("invalid temperature: %w", err)
		}
		if t < 0 || t > 2 {
			return cur, fmt.Errorf("temperature %v out of range 0-2", t)
		}
		f := float32(t)
		next.Temperature = &f
	}
	next.SystemPrompt = strings.TrimSpace(system)
	if settingsChanged(cur, next) {
		next.Preset = ""
	}
	return next, nil
}

func settingsChanged(a, b session.Settings) bool {
	if a.Model != b.Model || a.SystemPrompt != b.SystemPrompt {
		return true
	}
	if (a.Temperature == nil) != (b.Temperature == nil) {
		return true
	}
	return a.Temperature != nil && *a.Temperature != *b.Temperature
}

func (s *Server) handleApplyPreset(c *gin.Context) {
	sess := currentSession(c)
	name := c.PostForm("preset")

	var (
		p   *preset.Preset
		err error
	)
	if slices.Contains(s.presetNames(), name) {
		p, err = preset.Find(name, s.presetDirs)
	} else {
		err = fmt.Errorf("unknown preset %q", name)
	}
	if err == nil && p.Model != nil && !slices.Contains(s.models, *p.Model) {
		err = fmt.Errorf("preset model %q is not offered", *p.Model)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session": sess.ID(),
			"preset":  name,
		}).Warn("preset not applied")
		s.redirectNotice(c, noticePreset)
		return
	}

	sess.SetSettings(p.Apply(sess.Settings()))
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleLoginPage(c *gin.Context) {
	if s.auth == nil || s.authenticated(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{"Notice": noticeText[c.Query("notice")]})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.auth == nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if !s.auth.Check(c.PostForm("password")) {
		s.log.WithField("client_ip", c.ClientIP()).Warn("login failed")
		c.Redirect(http.StatusSeeOther, "/login?notice="+noticeLogin)
		return
	}

	token, expires, err := s.auth.Issue()
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	s.setCookie(c, authCookie, token, int(s.auth.ttl.Seconds()))
	s.log.WithFields(logrus.Fields{
		"client_ip": c.ClientIP(),
		"expires":   expires,
	}).Info("login succeeded")
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleLogout(c *gin.Context) {
	s.setCookie(c, authCookie, "", -1)
	if id, err := c.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(id)
	}
	s.setCookie(c, sessionCookie, "", -1)
	target := "/"
	if s.auth != nil {
		target = "/login"
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (s *Server) redirectNotice(c *gin.Context, code string) {
	if code == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.Redirect(http.StatusSeeOther, "/?notice="+code)
}

func (s *Server) modelOptions(current string) []modelOption {
	opts := make([]modelOption, 0, len(s.models)+1)
	found := false
	for _, m := range s.models {
		opts = append(opts, modelOption{Value: m, Selected: m == current})
		found = found || m == current
	}
	if !found && current != "" {
		opts = append([]modelOption{{Value: current, Selected: true}}, opts...)
	}
	return opts
}

func (s *Server) presetNames() []string {
	entries, err := preset.List(s.presetDirs)
	if err != nil {
		s.log.WithError(err).Warn("listing presets")
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func viewSettings(st session.Settings) settingsView {
	v := settingsView{
		Model:        st.Model,
		SystemPrompt: st.SystemPrompt,
		Preset:       st.Preset,
	}
	if st.Temperature != nil {
		v.Temperature = strconv.FormatFloat(float64(*st.Temperature), 'f', 1, 32)
	}
	return v
}
