package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/service"
)

// Request bodies decode strictly: unknown fields and trailing garbage are
// rejected, matching the shape contracts in the API.

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type mintKeyRequest struct {
	ProjectID string   `json:"project_id"`
	Owner     string   `json:"owner"`
	Metadata  string   `json:"metadata"`
	ExpiresAt *float64 `json:"expires_at"`
}

type revokeKeyRequest struct {
	ProjectID string `json:"project_id"`
	KeyID     string `json:"key_id"`
}

func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	var req validateKeyRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}

	result, err := s.validator.Validate(r.Context(), req.APIKey)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMintKey(w http.ResponseWriter, r *http.Request) {
	var req mintKeyRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}

	bearer, err := s.admin.MintKey(r.Context(), service.MintInput{
		ProjectID: req.ProjectID,
		Owner:     req.Owner,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"api_key": bearer})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req revokeKeyRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed request body")
		return
	}

	if err := s.admin.RevokeKey(r.Context(), req.ProjectID, req.KeyID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := q.Get("project_id")

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "offset must be a nonnegative integer")
			return
		}
		offset = n
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	page, err := s.admin.ListKeys(r.Context(), projectID, offset, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	doc, err := s.admin.CreateProject(r.Context(), q.Get("project_id"), q.Get("label"), q.Get("owner"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	doc, err := s.admin.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// writeServiceError maps the service taxonomy onto the wire contract. The
// unauthorized body is a single fixed shape for every denial cause.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var valErr *service.ValidationError

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, service.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", "resource already exists")
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, "validation_error", valErr.Msg)
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unavailable")
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeStrict parses exactly one JSON value, rejecting unknown fields and
// trailing content.
func decodeStrict(r io.Reader, dst interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing content after JSON body")
	}
	return nil
}
