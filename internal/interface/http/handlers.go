package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskinspect/thesis-lifecycle/internal/application/command"
	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every probe. Only a failing critical probe turns it
// into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, handlers.Health{Status: handlers.HealthOK, Version: s.config.Version})
		return
	}

	h := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !h.Healthy() {
		code = http.StatusServiceUnavailable
	}
	send(w, r, code, JSONResponse{Success: h.Healthy(), Data: h})
}

// handleReady handles the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if h := s.deps.HealthChecker.Check(r.Context()); !h.Healthy() {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready",
				"failing: "+strings.Join(h.Failing, ", "), h.Probes)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type submitThesisRequest struct {
	StudentID    string `json:"student_id"`
	SupervisorID string `json:"supervisor_id"`
	Department   string `json:"department"`
	FileRef      string `json:"file_ref"`
}

type reviewRequest struct {
	Comments string `json:"comments"`
}

type resubmissionRequest struct {
	Reason string `json:"reason"`
}

type revisionRequest struct {
	FileRef string `json:"file_ref"`
}

// transitionResponse is returned by every command.
type transitionResponse struct {
	LineageID      string    `json:"lineage_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	VersionNumber  int       `json:"version_number"`
	ProgressStep   int       `json:"progress_step"`
	ProgressSteps  int       `json:"progress_steps"`
	Revision       int64     `json:"revision"`
	At             time.Time `json:"at"`
}

func newTransitionResponse(res *command.Result) transitionResponse {
	return transitionResponse{
		LineageID:      res.LineageID,
		Status:         res.Status.String(),
		PreviousStatus: res.PreviousState.String(),
		VersionNumber:  res.VersionNumber,
		ProgressStep:   res.ProgressStep,
		ProgressSteps:  thesis.ProgressSteps,
		Revision:       res.Revision,
		At:             res.At,
	}
}

// handleSubmitThesis handles POST /api/v1/theses.
func (s *Server) handleSubmitThesis(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)

	var req submitThesisRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	// A student submits for themselves unless they name someone else,
	// which authorization then rejects.
	if req.StudentID == "" && actor.Role == thesis.RoleStudent {
		req.StudentID = actor.ID.String()
	}

	res, err := s.deps.SubmitThesis.Handle(r.Context(), command.SubmitThesisCommand{
		StudentID:    req.StudentID,
		SupervisorID: req.SupervisorID,
		Department:   req.Department,
		FileRef:      req.FileRef,
		Actor:        actor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/theses/"+res.LineageID)
	writeJSON(w, r, http.StatusCreated, newTransitionResponse(res))
}

// handleApprove handles POST /api/v1/theses/{id}/approve.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, command.DecisionApprove)
}

// handleReject handles POST /api/v1/theses/{id}/reject.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, command.DecisionReject)
}

func (s *Server) review(w http.ResponseWriter, r *http.Request, decision command.Decision) {
	var req reviewRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.ReviewThesis.Handle(r.Context(), command.ReviewThesisCommand{
		LineageID: chi.URLParam(r, "id"),
		Decision:  decision,
		Comments:  req.Comments,
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newTransitionResponse(res))
}

// handleRequestResubmission handles POST /api/v1/theses/{id}/resubmission-requests.
func (s *Server) handleRequestResubmission(w http.ResponseWriter, r *http.Request) {
	var req resubmissionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.RequestResubmission.Handle(r.Context(), command.RequestResubmissionCommand{
		LineageID: chi.URLParam(r, "id"),
		Reason:    req.Reason,
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newTransitionResponse(res))
}

// handleSubmitRevision handles POST /api/v1/theses/{id}/revisions.
func (s *Server) handleSubmitRevision(w http.ResponseWriter, r *http.Request) {
	var req revisionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.SubmitRevision.Handle(r.Context(), command.SubmitRevisionCommand{
		LineageID: chi.URLParam(r, "id"),
		FileRef:   req.FileRef,
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newTransitionResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetThesis handles GET /api/v1/theses/{id}.
func (s *Server) handleGetThesis(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetThesis.Handle(r.Context(), query.GetThesisQuery{
		LineageID: chi.URLParam(r, "id"),
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetByStudent handles GET /api/v1/students/{studentID}/thesis.
func (s *Server) handleGetByStudent(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetThesis.Handle(r.Context(), query.GetThesisQuery{
		StudentID: chi.URLParam(r, "studentID"),
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetVersion handles GET /api/v1/theses/{id}/versions/{n}.
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		s.writeError(w, r, shared.NewDomainError("http", "GetVersion", shared.ErrInvalidInput, "version number must be an integer"))
		return
	}

	view, err := s.deps.GetVersion.Handle(r.Context(), query.GetVersionQuery{
		LineageID: chi.URLParam(r, "id"),
		Number:    n,
		Actor:     actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleListByStatus handles GET /api/v1/theses?status=&page=&page_size=.
func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ListByStatus.Handle(r.Context(), query.ListByStatusQuery{
		Status:   r.URL.Query().Get("status"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
		Actor:    actorOf(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res.Items, &ResponseMeta{
		Page:     res.Page,
		PageSize: res.PageSize,
		HasMore:  res.HasMore,
	})
}

// handleCheckEligibility handles GET /api/v1/eligibility. The answer is
// advisory; commands re-check against fresh events.
func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}

	view, err := s.deps.CheckEligibility.Handle(r.Context(), query.CheckEligibilityQuery{
		Department: r.URL.Query().Get("department"),
		Category:   r.URL.Query().Get("category"),
		Language:   lang,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusByKey maps guidance error keys to HTTP statuses.
var statusByKey = map[string]int{
	"invalid_transition": http.StatusConflict,
	"conflict":           http.StatusConflict,
	"eligibility_denied": http.StatusUnprocessableEntity,
	"not_found":          http.StatusNotFound,
	"forbidden":          http.StatusForbidden,
	"unauthorized":       http.StatusUnauthorized,
	"invalid_input":      http.StatusBadRequest,
	"unavailable":        http.StatusServiceUnavailable,
	"internal":           http.StatusInternalServerError,
}

// deniedDetails is attached to eligibility denials.
type deniedDetails struct {
	Reason      string     `json:"reason"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	Locale      string     `json:"locale"`
}

// writeError maps err to a status, an error code and a localized message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	key := guidance.KeyFor(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		key = "unavailable"
	}
	status, ok := statusByKey[key]
	if !ok {
		status = http.StatusInternalServerError
	}

	tag := s.deps.Guide.Match(r.Header.Get("Accept-Language"))
	message := s.deps.Guide.ForError(tag, err)

	var details any
	var denied *eligibility.DeniedError
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &denied):
		d := deniedDetails{Reason: string(denied.Reason), Locale: tag.String()}
		if !denied.Window.From.IsZero() {
			start, end := denied.Window.From, denied.Window.To
			d.WindowStart, d.WindowEnd = &start, &end
		}
		details = d
	case status < http.StatusInternalServerError && errors.As(err, &domainErr):
		details = domainErr.Message
	}

	log := logger.FromContext(r.Context())
	switch {
	case status == http.StatusInternalServerError:
		log.Error("request failed with a defect", logger.Err(err), logger.String("path", r.URL.Path))
	case key == "invalid_transition" || key == "unavailable":
		log.Warn("request rejected", logger.Err(err), logger.String("code", key))
	}

	writeJSONError(w, r, status, key, message, details)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON decodes the request body into dst. An empty body is accepted
// only when required is false.
func decodeJSON(r *http.Request, dst any, required bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && !required:
		return nil
	case errors.Is(err, io.EOF):
		return shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "request body is required")
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return shared.WrapError("http", "Decode", shared.ErrInvalidInput, "request body too large", err)
		}
		return shared.WrapError("http", "Decode", shared.ErrInvalidInput, "malformed JSON body", err)
	}
}

// actorOf returns the caller stored by the auth middleware.
func actorOf(r *http.Request) thesis.Actor {
	actor, _ := handlers.ActorFromContext(r.Context())
	return actor
}
