// Package server exposes the analyst over HTTP for a chat front end.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ohlcv-analyst/internal/agents"
	"ohlcv-analyst/internal/config"
	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/resilience"
	"ohlcv-analyst/internal/service"
	"ohlcv-analyst/internal/store"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ChatResponse is returned for an answered question.
type ChatResponse struct {
	Response  string               `json:"response"`
	RequestID string               `json:"request_id"`
	ToolCalls []agents.ToolCallLog `json:"tool_calls"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Bars      int    `json:"bars"`
	FirstDate string `json:"first_date,omitempty"`
	LastDate  string `json:"last_date,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Options wires the server's collaborators.
type Options struct {
	Config  config.ServerConfig
	Service service.Service
	Dataset *store.Dataset
	// Breaker is reported by the health endpoint when set.
	Breaker  *resilience.CircuitBreaker
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server is the HTTP front of the analyst.
type Server struct {
	cfg     config.ServerConfig
	svc     service.Service
	dataset *store.Dataset
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	router  *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		cfg:     opts.Config,
		svc:     opts.Service,
		dataset: opts.Dataset,
		breaker: opts.Breaker,
		logger:  opts.Logger.With().Str("component", "server").Logger(),
	}

	router := gin.New()
	router.Use(Recovery(s.logger), RequestID(), Logger(s.logger), CORS(opts.Config.AllowedOrigins))

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/chat", RateLimiter(opts.Config.RateLimit, opts.Config.RateBurst), s.chat)

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) chat(c *gin.Context) {
	requestID := c.Writer.Header().Get(RequestIDHeader)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "Body must be a JSON object with a non-empty \"message\" field",
			RequestID: requestID,
		})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "message must not be empty", RequestID: requestID})
		return
	}
	if s.cfg.MaxMessageLen > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLen {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "message is too long", RequestID: requestID})
		return
	}

	ctx := c.Request.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	cot, err := s.svc.Ask(ctx, message)
	if err != nil {
		status, code := statusFor(err)
		c.JSON(status, ErrorResponse{Error: code, Message: messageFor(code), RequestID: requestID})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Response:  cot.Response,
		RequestID: cot.RequestID,
		ToolCalls: cot.ToolCalls,
	})
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if s.dataset != nil {
		resp.Bars = s.dataset.Len()
		if first, ok := s.dataset.First(); ok {
			resp.FirstDate = first.Date()
		}
		if last, ok := s.dataset.Last(); ok {
			resp.LastDate = last.Date()
		}
	}
	if s.breaker != nil {
		resp.Reasoning = string(s.breaker.State())
		if s.breaker.State() == resilience.CircuitOpen {
			resp.Status = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrPlanningUnavailable), errors.Is(err, apperrors.ErrSynthesisUnavailable):
		return http.StatusServiceUnavailable, "reasoning_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func messageFor(code string) string {
	switch code {
	case "invalid_request":
		return "The question could not be processed"
	case "reasoning_unavailable":
		return "The reasoning service is unavailable, please try again later"
	case "timeout":
		return "The question took too long to answer"
	case "cancelled":
		return "The request was cancelled"
	default:
		return "Internal server error"
	}
}
