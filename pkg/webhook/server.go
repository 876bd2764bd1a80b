package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/github"
	"github.com/cometbot/comet/pkg/logger"
)

const maxBodySize = 5 << 20

// response is the JSON status body; code mirrors the HTTP status.
type response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server receives GitHub webhook deliveries, validates them against
// per-repository secrets and fans accepted events out to subscribed chats.
type Server struct {
	cfg  config.WebhookConfig
	subs *github.SubscriptionStore
	bus  *bus.MessageBus
	srv  *http.Server
}

func NewServer(cfg config.WebhookConfig, subs *github.SubscriptionStore, messageBus *bus.MessageBus) *Server {
	return &Server{
		cfg:  cfg,
		subs: subs,
		bus:  messageBus,
	}
}

// Router builds the gin handler tree. Split out from Start so tests can
// drive it with httptest directly.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.POST("/github", s.handleGitHub)
	return engine
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.InfoCF("webhook", "Webhook server listening", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("webhook", "Webhook server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleGitHub(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		s.reply(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	repoName := gjson.GetBytes(body, "repository.full_name").String()
	if repoName == "" {
		s.reply(c, http.StatusBadRequest, "missing repository.full_name")
		return
	}

	secret, configured := s.cfg.SecretFor(repoName)
	if !configured {
		logger.WarnCF("webhook", "Delivery for unconfigured repository", map[string]interface{}{
			"repo":   repoName,
			"status": NotFound.String(),
		})
		s.reply(c, http.StatusForbidden, "repository not configured")
		return
	}

	status := CheckSignature(secret, body, c.GetHeader("X-Hub-Signature-256"))
	if status == Unauthorized {
		logger.WarnCF("webhook", "Signature check failed", map[string]interface{}{
			"repo":   repoName,
			"status": status.String(),
		})
		s.reply(c, http.StatusForbidden, "signature mismatch")
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	switch eventType {
	case "ping":
		s.reply(c, http.StatusOK, "pong")
		return
	case "push", "pull_request":
	default:
		s.reply(c, http.StatusNotAcceptable, fmt.Sprintf("event %q not supported", eventType))
		return
	}

	event, err := parseEvent(eventType, body)
	if err != nil {
		logger.WarnCF("webhook", "Failed to parse event payload", map[string]interface{}{
			"repo":  repoName,
			"event": eventType,
			"error": err.Error(),
		})
		s.reply(c, http.StatusBadRequest, "malformed event payload")
		return
	}

	delivered := s.broadcast(event)
	logger.InfoCF("webhook", "Delivery accepted", map[string]interface{}{
		"repo":    repoName,
		"event":   eventType,
		"status":  status.String(),
		"targets": delivered,
	})
	s.reply(c, http.StatusOK, "accepted")
}

func parseEvent(eventType string, body []byte) (Event, error) {
	switch eventType {
	case "push":
		var e PushEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "pull_request":
		var e PullRequestEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, err
		}
		return &e, nil
	}
	return nil, fmt.Errorf("unsupported event type %q", eventType)
}

// broadcast publishes the rendered event to every subscribed chat and
// returns how many targets were addressed.
func (s *Server) broadcast(event Event) int {
	w := event.ToWrapper()
	if w == nil || !w.Usable() {
		return 0
	}

	targets := s.subs.Targets(event.RepoName())
	for _, t := range targets {
		s.bus.PublishOutbound(bus.OutboundMessage{
			Channel: t.Channel,
			ChatID:  t.ChatID,
			Message: w,
		})
	}
	return len(targets)
}

func (s *Server) reply(c *gin.Context, code int, msg string) {
	c.JSON(code, response{Code: code, Message: msg})
}
