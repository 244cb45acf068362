// Package http contains the chi HTTP handlers for the trial lifecycle API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "betagate/internal/errors"
	"betagate/internal/services"
)

var validate = validator.New()

// TrialHandler handles trial lifecycle HTTP requests.
type TrialHandler struct {
	service services.TrialService
	logger  *slog.Logger
}

// NewTrialHandler creates a new trial handler.
func NewTrialHandler(service services.TrialService, logger *slog.Logger) *TrialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrialHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "trial")),
	}
}

// UnlockRequest is the unlock payload.
type UnlockRequest struct {
	Password string `json:"password" validate:"required"`
}

// Bind implements the render.Binder interface.
func (u *UnlockRequest) Bind(r *http.Request) error {
	return validate.Struct(u)
}

// Routes returns a chi router for trial endpoints.
func (h *TrialHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Get("/remaining", h.GetRemaining)
	r.Post("/unlock", h.Unlock)
	r.Post("/lock", h.Lock)
	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)
	r.Post("/reset", h.Reset)

	return r
}

// GetStatus handles GET /api/trial/status.
func (h *TrialHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("trial-handler")
	ctx, span := tracer.Start(ctx, "trial_handler.get_status",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/trial/status"),
		),
	)
	defer span.End()

	resp, err := h.service.Status(ctx)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("trial.tier", resp.Tier))
	render.JSON(w, r, resp)
}

// GetRemaining handles GET /api/trial/remaining.
func (h *TrialHandler) GetRemaining(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Remaining(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Unlock handles POST /api/trial/unlock. A wrong password is an expected
// outcome and comes back as 401 with the structured response, not as a
// problem document.
func (h *TrialHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("trial-handler")
	ctx, span := tracer.Start(ctx, "trial_handler.unlock")
	defer span.End()

	var req UnlockRequest
	if err := render.Bind(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid unlock request",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.BadRequest("password is required"))
		return
	}

	resp, err := h.service.Unlock(ctx, req.Password)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Bool("trial.unlock_success", resp.Success))
	if !resp.Success {
		render.Status(r, http.StatusUnauthorized)
	}
	render.JSON(w, r, resp)
}

// Lock handles POST /api/trial/lock.
func (h *TrialHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.Lock)
}

// Pause handles POST /api/trial/pause.
func (h *TrialHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.Pause)
}

// Resume handles POST /api/trial/resume.
func (h *TrialHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.Resume)
}

// Reset handles POST /api/trial/reset.
func (h *TrialHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.Reset)
}

// renderStatus runs a lifecycle operation and renders the resulting
// status snapshot.
func (h *TrialHandler) renderStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) (*services.StatusResponse, error)) {
	resp, err := op(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *TrialHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "trial operation failed",
		slog.String("error", err.Error()),
	)
	render.Render(w, r, apperrors.Internal(err.Error()))
}
