// Package services holds the business layer between the trial manager and
// the transport handlers.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"betagate/internal/trial"
)

// TrialService exposes trial lifecycle operations to transports.
type TrialService interface {
	Status(ctx context.Context) (*StatusResponse, error)
	Remaining(ctx context.Context) (*RemainingResponse, error)
	Unlock(ctx context.Context, password string) (*UnlockResponse, error)
	Lock(ctx context.Context) (*StatusResponse, error)
	Pause(ctx context.Context) (*StatusResponse, error)
	Resume(ctx context.Context) (*StatusResponse, error)
	Reset(ctx context.Context) (*StatusResponse, error)
}

// StatusResponse is the standardized trial status payload.
type StatusResponse struct {
	Tier             string    `json:"tier"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	RemainingDisplay string    `json:"remaining_display"`
	Paused           bool      `json:"paused"`
	Unlocked         bool      `json:"unlocked"`
	TraceID          string    `json:"trace_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// RemainingResponse carries only the countdown reading.
type RemainingResponse struct {
	RemainingSeconds float64   `json:"remaining_seconds"`
	RemainingDisplay string    `json:"remaining_display"`
	TraceID          string    `json:"trace_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// UnlockResponse reports the outcome of an unlock attempt.
type UnlockResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Status    *StatusResponse `json:"status,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type trialService struct {
	manager trial.API
	logger  *slog.Logger
}

// NewTrialService creates the trial service.
func NewTrialService(manager trial.API, logger *slog.Logger) TrialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &trialService{
		manager: manager,
		logger:  logger.With(slog.String("service", "trial")),
	}
}

func (s *trialService) status(ctx context.Context) *StatusResponse {
	tier := s.manager.CurrentTier(ctx)
	remaining := s.manager.RemainingTime()

	return &StatusResponse{
		Tier:             tier.String(),
		RemainingSeconds: remaining.Seconds(),
		RemainingDisplay: trial.FormatMMSS(remaining),
		Paused:           s.manager.IsPaused(),
		Unlocked:         s.manager.IsUnlocked(),
		TraceID:          middleware.GetReqID(ctx),
		Timestamp:        time.Now().UTC(),
	}
}

// Status derives the current tier and reads the countdown.
func (s *trialService) Status(ctx context.Context) (*StatusResponse, error) {
	resp := s.status(ctx)
	s.logger.DebugContext(ctx, "trial status requested",
		slog.String("tier", resp.Tier),
		slog.Float64("remaining_seconds", resp.RemainingSeconds),
	)
	return resp, nil
}

// Remaining reads the countdown without side effects beyond derivation.
func (s *trialService) Remaining(ctx context.Context) (*RemainingResponse, error) {
	remaining := s.manager.RemainingTime()
	return &RemainingResponse{
		RemainingSeconds: remaining.Seconds(),
		RemainingDisplay: trial.FormatMMSS(remaining),
		TraceID:          middleware.GetReqID(ctx),
		Timestamp:        time.Now().UTC(),
	}, nil
}

// Unlock attempts the password upgrade to unrestricted beta access.
func (s *trialService) Unlock(ctx context.Context, password string) (*UnlockResponse, error) {
	ok := s.manager.Unlock(ctx, password)

	resp := &UnlockResponse{
		Success:   ok,
		TraceID:   middleware.GetReqID(ctx),
		Timestamp: time.Now().UTC(),
	}
	if ok {
		resp.Message = "beta access unlocked"
		resp.Status = s.status(ctx)
		s.logger.InfoContext(ctx, "unlock succeeded")
	} else {
		resp.Message = "invalid password"
		s.logger.WarnContext(ctx, "unlock failed")
	}
	return resp, nil
}

// Lock revokes the unlock.
func (s *trialService) Lock(ctx context.Context) (*StatusResponse, error) {
	s.manager.Lock(ctx)
	return s.status(ctx), nil
}

// Pause suspends the countdown.
func (s *trialService) Pause(ctx context.Context) (*StatusResponse, error) {
	s.manager.PauseCountdown(ctx)
	return s.status(ctx), nil
}

// Resume ends a pause session.
func (s *trialService) Resume(ctx context.Context) (*StatusResponse, error) {
	s.manager.ResumeCountdown(ctx)
	return s.status(ctx), nil
}

// Reset clears the trial timing facts.
func (s *trialService) Reset(ctx context.Context) (*StatusResponse, error) {
	s.manager.ResetTrialTime(ctx)
	return s.status(ctx), nil
}
