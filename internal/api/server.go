package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkedin-pipeline/internal/agent/publisher"
	"github.com/linkedin-pipeline/internal/linkedin"
	"github.com/linkedin-pipeline/internal/notify"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/workflow"
	"github.com/linkedin-pipeline/pkg/logger"
)

// WorkflowScheduler starts pipeline runs
type WorkflowScheduler interface {
	Execute(ctx context.Context, trigger workflow.Trigger, params workflow.Params) (*workflow.Execution, error)
	ExecuteAsync(ctx context.Context, trigger workflow.Trigger, params workflow.Params) (*workflow.Execution, error)
	Status() workflow.Status
}

// DraftPublisher shares reviewed drafts
type DraftPublisher interface {
	Publish(ctx context.Context, draftID uint) (*publisher.PublishResult, error)
	ShareText(ctx context.Context, title, content string) *linkedin.ShareResult
}

// Replier answers Slack messages as the bot
type Replier interface {
	Reply(ctx context.Context, channel, text string) error
}

// TopicStore holds the user's topic list
type TopicStore interface {
	Current(ctx context.Context) ([]string, error)
	Add(ctx context.Context, csv string) ([]string, error)
	Reset(ctx context.Context) ([]string, error)
}

// Deps are the collaborators behind the HTTP surface
type Deps struct {
	Scheduler  WorkflowScheduler
	Publisher  DraftPublisher
	Notifier   notify.Notifier
	Replier    Replier
	Topics     TopicStore
	Repository storage.Repository // dashboard data
	Verifier   *Verifier
	APIKey     string
}

// Server serves the Slack callbacks and the workflow API
type Server struct {
	deps   Deps
	router *gin.Engine
	log    *logger.Logger

	// runs started from a request outlive it
	baseCtx context.Context
}

// NewServer builds the router. Runs started by requests use baseCtx.
func NewServer(baseCtx context.Context, deps Deps, log *logger.Logger) *Server {
	s := &Server{
		deps:    deps,
		log:     log.WithComponent("api"),
		baseCtx: baseCtx,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/health", s.health)
	r.GET("/dashboard", s.dashboard)

	r.POST("/slack/interactive", s.slackInteractive)
	r.POST("/slack/events", s.slackEvents)

	api := r.Group("/api", apiKeyAuth(deps.APIKey))
	api.POST("/execute", s.execute)
	api.GET("/status", s.status)

	s.router = r
	return s
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// execute runs the workflow and waits for the result
func (s *Server) execute(c *gin.Context) {
	var params workflow.Params
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
			return
		}
	}

	exec, err := s.deps.Scheduler.Execute(s.baseCtx, workflow.TriggerAPI, params)
	switch {
	case errors.Is(err, workflow.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"detail": "Workflow already running"})
		return
	case errors.Is(err, workflow.ErrCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": err.Error()})
		return
	case err != nil:
		resp := gin.H{"status": workflow.StatusError, "detail": err.Error()}
		if exec != nil {
			resp["execution_id"] = exec.ID
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       workflow.StatusSuccess,
		"message":      "Workflow execution completed",
		"timestamp":    time.Now().UTC(),
		"execution_id": exec.ID,
		"result":       exec.Result,
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}
