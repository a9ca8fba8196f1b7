package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-insight/internal/search"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/search", searchHandler(cfg))

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", listVideosHandler(cfg))
			r.Post("/", registerVideoHandler(cfg))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getVideoHandler(cfg))
				r.Delete("/", deleteVideoHandler(cfg))
				r.Post("/process", processVideoHandler(cfg))
				r.Get("/transcript", transcriptHandler(cfg))
				r.Get("/analysis", analysisHandler(cfg))
				r.Post("/highlights/regenerate", regenerateHandler(cfg))
				if cfg.Playback != nil {
					r.Get("/highlights/reel", reelHandler(cfg))
				}
				r.Get("/highlights/edl", edlDownloadHandler(cfg))
				r.Post("/highlights/edl", edlExportHandler(cfg))
			})
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Queue.Status()

		state := "idle"
		if snap.Busy {
			state = "processing"
		}
		resp := StatusResponse{State: state, Queue: snap}

		// Peek only: a status request must not wait on collaborator probes.
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				deps := &DependenciesResponse{AllOK: caps.AllOK, Checks: caps.Checks}
				if !caps.ProbedAt.IsZero() {
					deps.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Dependencies = deps
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func searchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req search.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.TopK < 0 || req.TopK > search.MaxTopK {
			WriteError(w, http.StatusBadRequest, "top_k must be between 1 and 100", "BAD_REQUEST")
			return
		}

		hits, err := cfg.Search.Search(r.Context(), req)
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				WriteError(w, http.StatusBadRequest, "query is required", "BAD_REQUEST")
				return
			}
			cfg.Logger.Error("search failed", "error", err, "request_id", requestID(r))
			WriteError(w, http.StatusBadGateway, "search unavailable", "UPSTREAM_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: hits})
	}
}
