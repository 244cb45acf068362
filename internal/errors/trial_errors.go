// Package errors defines the domain errors and the RFC 7807 problem
// responses used by the HTTP surface.
package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Trial-specific sentinel errors.
var (
	ErrTrialExpired     = errors.New("trial expired")
	ErrNotChannelMember = errors.New("not a channel member")
	ErrNoPassword       = errors.New("no unlock password configured")
	ErrInvalidPassword  = errors.New("invalid unlock password")
	ErrInvalidRequest   = errors.New("invalid request")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// NewProblem creates a ProblemDetails response.
func NewProblem(status int, title, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// BadRequest builds a 400 problem.
func BadRequest(detail string) *ProblemDetails {
	return NewProblem(http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized builds a 401 problem.
func Unauthorized(detail string) *ProblemDetails {
	return NewProblem(http.StatusUnauthorized, "Unauthorized", detail)
}

// Forbidden builds a 403 problem.
func Forbidden(detail string) *ProblemDetails {
	return NewProblem(http.StatusForbidden, "Forbidden", detail)
}

// Internal builds a 500 problem.
func Internal(detail string) *ProblemDetails {
	return NewProblem(http.StatusInternalServerError, "Internal Server Error", detail)
}
