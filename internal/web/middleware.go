package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	sessionCookie   = "webchat_session"
	authCookie      = "webchat_auth"

	ctxRequestID = "request_id"
	ctxSession   = "session"
)

// requestID tags every request with an ID, reusing a valid incoming one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one log entry per request.
func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(ctxRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).Round(time.Microsecond),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Request.URL.Path == "/healthz":
			entry.Trace("request")
		default:
			entry.Info("request")
		}
	}
}

func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(ctxRequestID),
			"panic":      recovered,
		}).Error("panic recovered")
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// rateLimit throttles per client IP. Limiter failures let the request through.
func (s *Server) rateLimit(api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ok, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.WithError(err).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if ok {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		if api {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/?notice="+noticeRateLimited)
		c.Abort()
	}
}

func (s *Server) authenticated(c *gin.Context) bool {
	if s.auth == nil {
		return true
	}
	token, err := c.Cookie(authCookie)
	if err != nil {
		return false
	}
	return s.auth.Validate(token) == nil
}

// requireAuth redirects pages to the login form when the gate is enabled.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authenticated(c) {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAuthAPI is requireAuth for JSON endpoints.
func (s *Server) requireAuthAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authenticated(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// requireCredential blocks the app while the provider credential is missing.
func (s *Server) requireCredential(api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.credentialErr == nil {
			c.Next()
			return
		}
		if api {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": s.credentialErr.Error()})
			return
		}
		c.HTML(http.StatusServiceUnavailable, "notice.html", gin.H{
			"Title":   "Configuration required",
			"Message": s.credentialErr.Error(),
		})
		c.Abort()
	}
}

// withSession binds the browser's conversation to the request, starting a
// new one when the cookie is missing or the session has expired.
func (s *Server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(sessionCookie)
		sess, created := s.sessions.GetOrCreate(id)
		if created {
			s.setCookie(c, sessionCookie, sess.ID(), 0)
			s.log.WithFields(logrus.Fields{
				"request_id": c.GetString(ctxRequestID),
				"session":    sess.ID(),
			}).Debug("session started")
		}
		c.Set(ctxSession, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(ctxSession).(*session.Session)
}

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.secureCookies, true)
}
