package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hazyhaar/unsuggest/kit"
)

// Router returns the HTTP control API:
//
//	GET  /health
//	GET  /api/enabled
//	PUT  /api/enabled   {"enabled": bool}
//	GET  /api/status
//	GET  /api/pages
//	GET  /api/events    (SSE)
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(kitContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/enabled", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.sender.Enabled(r.Context())})
		})

		r.Put("/enabled", func(w http.ResponseWriter, r *http.Request) {
			var req SetEnabledRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			resp, err := s.setEnabled(r.Context(), &req)
			if err != nil {
				var verr validation.Errors
				if errors.As(err, &verr) {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			resp, err := s.status(r.Context(), nil)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/pages", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.listPages())
		})

		if s.hub != nil {
			r.Get("/events", s.hub.ServeHTTP)
		}
	})

	return r
}

func kitContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("control: json encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
