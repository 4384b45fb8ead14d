package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/limiter"
	"github.com/longkey1/webchat/internal/logging"
	"github.com/longkey1/webchat/internal/web"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var secureCookies bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser chat front end",
	Long: `Start the HTTP server with the chat page and its JSON API.

Each browser gets its own conversation, kept in memory until it is reset or
idle for longer than session_ttl. Set app_password (or password_hash) to require
a shared password; without one the page is open to anyone who can reach it.

When the API key for the default model is missing the server still starts, but
every page shows a notice until the key is configured.

Examples:
  webchat serve
  webchat serve --listen :3000
  WEBCHAT_APP_PASSWORD=secret webchat serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		srv, cleanup, err := newWebServer(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx, cfg.ListenAddr)
	},
}

func newWebServer(cfg *config.Config) (*web.Server, func(), error) {
	cleanup := func() {}

	router, err := newRouter(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	credErr := cfg.CheckCredentials()
	if credErr != nil {
		log.WithError(credErr).Error("provider credential missing, chat is disabled until it is configured")
	}

	ttl, err := cfg.SessionIdleTTL()
	if err != nil {
		return nil, cleanup, err
	}

	if err := cfg.CheckAuth(); err != nil {
		return nil, cleanup, fmt.Errorf("refusing to serve without the login gate: %w", err)
	}
	auth, err := web.NewAuth(cfg.AppPassword, cfg.PasswordHash, cfg.SessionSecret, ttl)
	if err != nil {
		return nil, cleanup, fmt.Errorf("configuring login: %w", err)
	}
	if auth == nil {
		log.Warn("no app_password set, the chat is open without login")
	} else if cfg.SessionSecret == "" {
		log.Info("no session_secret set, logins will not survive a restart")
	}

	lim, cleanup := newLimiter(cfg)

	svc := conversation.NewService(router,
		conversation.WithMaxMessageBytes(cfg.MaxMessageBytes),
		conversation.WithLogger(log),
	)
	sessions := session.NewManager(func() session.Settings { return defaultSettings(cfg) })

	srv, err := web.New(web.Options{
		Service:       svc,
		Sessions:      sessions,
		Models:        cfg.PickerModels(),
		Catalog:       router,
		PresetDirs:    cfg.PresetDirs,
		Limiter:       lim,
		Auth:          auth,
		CredentialErr: credErr,
		SessionTTL:    ttl,
		SecureCookies: secureCookies,
		Logger:        log,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	log.WithFields(logrus.Fields{
		"model":         cfg.Model,
		"models":        len(cfg.PickerModels()),
		"auth":          auth != nil,
		"max_bytes":     cfg.MaxMessageBytes,
		"rate_limit":    cfg.RateLimit,
		"gemini_token":  logging.MaskToken(cfg.GeminiToken),
		"openai_token":  logging.MaskToken(cfg.OpenAIToken),
		"session_ttl":   ttl,
		"shared_limits": cfg.RedisAddr != "",
	}).Info("web server configured")
	return srv, cleanup, nil
}

// newLimiter picks the rate limit store: Redis when redis_addr is set,
// otherwise per-process memory. A zero rate disables limiting.
func newLimiter(cfg *config.Config) (limiter.Limiter, func()) {
	if cfg.RateLimit <= 0 {
		return nil, func() {}
	}
	if cfg.RedisAddr == "" {
		return limiter.NewMemory(cfg.RateLimit, cfg.RateBurst), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unreachable, rate limits are not enforced until it is back")
	}
	return limiter.NewRedis(client, cfg.RateLimit, cfg.RateBurst), func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Debug("closing redis client")
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default :8080)")
	serveCmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "mark cookies Secure (serve behind HTTPS)")
	_ = viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
}
