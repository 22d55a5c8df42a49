package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/model"
)

// EnhanceService rewrites generation prompts with an LLM.
type EnhanceService struct {
	groqClient *client.GroqClient
}

// NewEnhanceService creates a new enhance service.
func NewEnhanceService(groqClient *client.GroqClient) *EnhanceService {
	return &EnhanceService{groqClient: groqClient}
}

// Enhance rewrites the prompt. Without a configured LLM it falls back to a
// deterministic local expansion so development setups keep working.
func (s *EnhanceService) Enhance(ctx context.Context, req *model.EnhanceRequest) (*model.EnhanceResponse, error) {
	if s.groqClient == nil || !s.groqClient.IsConfigured() {
		return s.enhanceMock(req), nil
	}

	enhanced, err := s.groqClient.Enhance(ctx, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("prompt enhancement failed: %w", err)
	}

	return &model.EnhanceResponse{
		Prompt:   req.Prompt,
		Enhanced: strings.TrimSpace(enhanced),
	}, nil
}

func (s *EnhanceService) enhanceMock(req *model.EnhanceRequest) *model.EnhanceResponse {
	return &model.EnhanceResponse{
		Prompt:   req.Prompt,
		Enhanced: req.Prompt + ", highly detailed, dramatic lighting, sharp focus",
	}
}
