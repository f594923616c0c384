// Package service exposes the question-answering use case behind an
// interface so transports can be decorated with logging and metrics.
package service

import (
	"context"

	"ohlcv-analyst/internal/agents"
)

// Service answers natural-language questions about the dataset.
type Service interface {
	Ask(ctx context.Context, query string) (*agents.ChainOfThought, error)
}

type service struct {
	orchestrator *agents.Orchestrator
}

// New wraps an orchestrator as a Service.
func New(orchestrator *agents.Orchestrator) Service {
	return &service{orchestrator: orchestrator}
}

func (s *service) Ask(ctx context.Context, query string) (*agents.ChainOfThought, error) {
	return s.orchestrator.Ask(ctx, query)
}
