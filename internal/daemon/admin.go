package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewAdminRouter serves the read-only operator endpoints. srv may be nil.
func NewAdminRouter(svc *Service, srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("write health response")
		}
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report := svc.Status(statusRecent)
		if srv != nil {
			report.Active = srv.Active()
		}
		writeJSON(w, http.StatusOK, report)
	})
	r.Get("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		bal, ok := svc.Ledger().Balance(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown account: " + id})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "balance": bal.StringFixed(2)})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Metrics().WriteJSON(w); err != nil {
			log.Error().Err(err).Msg("write metrics response")
		}
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode admin response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("admin request")
	})
}
