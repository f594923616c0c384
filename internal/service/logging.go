package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ohlcv-analyst/internal/agents"
	"ohlcv-analyst/internal/security"
)

// loggingMiddleware wraps Service and logs request information to the provided logger
type loggingMiddleware struct {
	logger zerolog.Logger
	svc    Service
}

func (s *loggingMiddleware) Ask(ctx context.Context, query string) (cot *agents.ChainOfThought, err error) {
	defer func(begin time.Time) {
		event := s.logger.Debug()
		if err != nil {
			event = s.logger.Error().Str("error", security.MaskSecrets(err.Error()))
		}
		if cot != nil {
			event = event.Str("request_id", cot.RequestID).Int("tool_calls", len(cot.ToolCalls))
		}
		event.
			Str("method", "Ask").
			Int("query_len", len(query)).
			Dur("elapsed", time.Since(begin)).
			Msg("Service call")
	}(time.Now())
	return s.svc.Ask(ctx, query)
}

// NewLoggingMiddleware logs every call at debug level, failures at error level.
func NewLoggingMiddleware(logger zerolog.Logger, svc Service) Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}
