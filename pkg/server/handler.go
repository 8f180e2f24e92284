package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	perrors "github.com/vango-dev/params/internal/errors"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/querystring"
	"github.com/vango-dev/params/pkg/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

// handleRender runs a render pass and returns the page's parameters.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.serveRender(w, r, "load", nil)
}

// handleChange applies a widget edit: form field "value" holds the raw
// widget value for the {key} parameter.
func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.serveRender(w, r, "change", setValue(key, r.PostFormValue("value")))
}

// handleExportAll toggles the export mode from form field "value".
func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	s.serveRender(w, r, "export_all", setExportAll(r.PostFormValue("value")))
}

func (s *Server) serveRender(w http.ResponseWriter, r *http.Request, trigger string, apply change) {
	sess, err := s.session(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	query, err := querystring.Parse(resumeQuery(r, sess))
	if err != nil {
		s.writeError(w, perrors.New(perrors.CodeCLIQuery).Wrap(err))
		return
	}

	view, err := s.render(r.Context(), sess, query, trigger, apply)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// session resolves the request's session from its cookie, creating one
// and setting the cookie when needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	var id string
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		id = c.Value
	}
	sess, err := s.manager.GetOrCreate(r.Context(), id, s.clientIP(r))
	if err != nil {
		return nil, err
	}
	if sess.ID != id {
		http.SetCookie(w, s.sessionCookie(sess.ID))
	}
	return sess, nil
}

func (s *Server) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// resumeQuery returns the request's query string, or the query saved with
// a restored session when the request carries none.
func resumeQuery(r *http.Request, sess *session.Session) string {
	resume := sess.TakeResumeQuery()
	if r.URL.RawQuery == "" {
		return resume
	}
	return r.URL.RawQuery
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var coded *perrors.CodedError
	switch {
	case errors.Is(err, params.ErrConversion):
		return http.StatusBadRequest
	case errors.Is(err, params.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessionsFromIP):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrManagerStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &coded) && coded.Code == perrors.CodeCLIQuery:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": perrors.FromError(err, perrors.CodeServer)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
