// Package httpapi exposes the engine's instance registry over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/petrijr/turno/pkg/api"
	"github.com/petrijr/turno/pkg/hrflow"
)

// Server serves the instance registry API.
type Server struct {
	engine api.Engine
	logger *slog.Logger
}

// New creates a Server. If logger is nil, slog.Default() is used.
func New(engine api.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", s.listInstances)
		r.Post("/{type}", s.startInstance)
		r.Get("/{id}", s.getInstance)
		r.Get("/{id}/history", s.getHistory)
		r.Post("/{id}/events/{name}", s.raiseEvent)
		r.Post("/{id}/cancel", s.cancelInstance)
	})

	// Approver callback. Approval instances are started with the
	// approval ID as their instance ID, so the two identify the same
	// workflow.
	r.Post("/approval/{id}/respond", s.respondApproval)

	return r
}

type instanceResponse struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Status         api.Status      `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	FailureKind    api.FailureKind `json:"failure_kind,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
	LastSequence   int64           `json:"last_sequence"`
	ParentID       string          `json:"parent_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUpdatedAt  time.Time       `json:"last_updated_at"`
}

func toInstanceResponse(inst *api.WorkflowInstance) instanceResponse {
	return instanceResponse{
		ID:             inst.ID,
		Type:           inst.Type,
		Status:         inst.Status,
		Result:         inst.Result,
		FailureKind:    inst.FailureKind,
		FailureMessage: inst.FailureMessage,
		LastSequence:   inst.LastSequence,
		ParentID:       inst.ParentID,
		CreatedAt:      inst.CreatedAt,
		LastUpdatedAt:  inst.LastUpdatedAt,
	}
}

func (s *Server) startInstance(w http.ResponseWriter, r *http.Request) {
	orchestration := chi.URLParam(r, "type")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var input json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			s.writeError(w, http.StatusBadRequest, errors.New("request body is not valid JSON"))
			return
		}
		input = body
	}

	var opts []api.StartOption
	if id := r.URL.Query().Get("id"); id != "" {
		opts = append(opts, api.WithInstanceID(id))
	}

	id, err := s.engine.Start(r.Context(), orchestration, input, opts...)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.GetInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	opts := api.InstanceListOptions{
		Type:   r.URL.Query().Get("type"),
		Status: api.Status(r.URL.Query().Get("status")),
	}
	instances, err := s.engine.ListInstances(r.Context(), opts)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.GetHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) raiseEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	payload, ok := s.readJSONBody(w, r)
	if !ok {
		return
	}
	if err := s.engine.RaiseEvent(r.Context(), id, name, payload); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "event": name})
}

func (s *Server) cancelInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	if body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20)); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := s.engine.Cancel(r.Context(), id, req.Reason); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(api.StatusCanceled)})
}

func (s *Server) respondApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payload, ok := s.readJSONBody(w, r)
	if !ok {
		return
	}
	if err := s.engine.RaiseEvent(r.Context(), id, hrflow.EventApprovalResponse, payload); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"approval_id": id})
}

func (s *Server) readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	if !json.Valid(body) {
		s.writeError(w, http.StatusBadRequest, errors.New("request body is not valid JSON"))
		return nil, false
	}
	return body, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrInstanceNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, api.ErrUnknownOrchestration):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, api.ErrDuplicateInstanceID), errors.Is(err, api.ErrInstanceNotWaiting):
		s.writeError(w, http.StatusConflict, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}
