// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/metrics"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/orchestrator"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

var errMultipleObjects = errors.New("request body must contain exactly one JSON object")

type executeChainRequest struct {
	Input     any            `json:"input"`
	Variables map[string]any `json:"variables"`
}

type executeChainResponse struct {
	Result *domain.ExecutionResult `json:"result"`
	Error  string                  `json:"error,omitempty"`
}

type Deps struct {
	Chains   ChainRegistry
	Executor ChainExecutor
	Audit    AuditReader
	Health   HealthChecker
	Logger   *slog.Logger

	AdminToken string
	// ExecutionsPerMinute limits executions per chain; 0 disables the limit.
	ExecutionsPerMinute int

	Version   string
	Commit    string
	BuildDate string
}

func NewRouter(deps Deps) http.Handler {
	if deps.Chains == nil || deps.Executor == nil || deps.Audit == nil {
		panic("httptransport.NewRouter requires chains, executor and audit")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- CHAINS ----------------

	r.Route("/chains", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var spec domain.ChainSpec
			if err := decodeJSON(r, &spec, false); err != nil {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}

			chain, err := deps.Chains.Create(r.Context(), spec)
			if err != nil {
				if isInvalidChain(err) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				logger.Error("create chain failed", "error", err)
				http.Error(w, "failed to create chain", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusCreated, chain)
		})

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			chains, err := deps.Chains.List(r.Context())
			if err != nil {
				logger.Error("list chains failed", "error", err)
				http.Error(w, "failed to list chains", http.StatusInternalServerError)
				return
			}
			if chains == nil {
				chains = []domain.Chain{}
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"chains": chains,
			})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")

			chain, found, err := deps.Chains.Get(r.Context(), id)
			if err != nil {
				logger.Error("get chain failed", "chain_id", id, "error", err)
				http.Error(w, "failed to get chain", http.StatusInternalServerError)
				return
			}
			if !found {
				http.Error(w, "chain not found", http.StatusNotFound)
				return
			}

			writeJSON(w, http.StatusOK, chain)
		})

		r.Patch("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")

			var patch domain.ChainPatch
			if err := decodeJSON(r, &patch, false); err != nil {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}

			updated, err := deps.Chains.Update(r.Context(), id, patch)
			if err != nil {
				if isInvalidChain(err) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				logger.Error("update chain failed", "chain_id", id, "error", err)
				http.Error(w, "failed to update chain", http.StatusInternalServerError)
				return
			}
			if !updated {
				http.Error(w, "chain not found", http.StatusNotFound)
				return
			}

			chain, found, err := deps.Chains.Get(r.Context(), id)
			if err != nil || !found {
				logger.Error("reload updated chain failed", "chain_id", id, "found", found, "error", err)
				http.Error(w, "failed to get chain", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, chain)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")

			deleted, err := deps.Chains.Delete(r.Context(), id)
			if err != nil {
				logger.Error("delete chain failed", "chain_id", id, "error", err)
				http.Error(w, "failed to delete chain", http.StatusInternalServerError)
				return
			}
			if !deleted {
				http.Error(w, "chain not found", http.StatusNotFound)
				return
			}

			w.WriteHeader(http.StatusNoContent)
		})

		// ---------------- EXECUTE CHAIN ----------------

		r.With(middleware.ExecutionRateLimit(deps.ExecutionsPerMinute, func(r *http.Request) string {
			return chi.URLParam(r, "id")
		}, logger)).Post("/{id}/executions", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")

			var req executeChainRequest
			if err := decodeJSON(r, &req, true); err != nil {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}

			result, err := deps.Executor.ExecuteChain(r.Context(), id, req.Input, orchestrator.ExecuteOptions{
				Variables: req.Variables,
			})
			if result == nil {
				switch {
				case errors.Is(err, domain.ErrChainNotFound):
					http.Error(w, "chain not found", http.StatusNotFound)
				case errors.Is(err, domain.ErrMissingDependency), errors.Is(err, domain.ErrCircularDependency):
					http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				default:
					logger.Error("execute chain failed", "chain_id", id, "error", err)
					http.Error(w, "failed to execute chain", http.StatusInternalServerError)
				}
				return
			}

			annotate(r.Context(), "execution_id", result.ExecutionID)
			annotate(r.Context(), "success", result.Success)

			resp := executeChainResponse{Result: result}
			if err != nil {
				resp.Error = err.Error()
			}
			writeJSON(w, http.StatusOK, resp)
		})
	})

	// ---------------- EXECUTIONS ----------------

	r.Get("/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		status, err := deps.Executor.GetExecutionStatus(id)
		if err != nil {
			if errors.Is(err, domain.ErrExecutionNotFound) {
				http.Error(w, "execution not found", http.StatusNotFound)
				return
			}
			logger.Error("get execution status failed", "execution_id", id, "error", err)
			http.Error(w, "failed to get execution", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, status)
	})

	// ---------------- AUDIT ----------------

	r.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
		executionID := strings.TrimSpace(r.URL.Query().Get("execution_id"))

		entries, err := deps.Audit.GetAuditTrail(r.Context(), executionID)
		if err != nil {
			logger.Error("get audit trail failed", "execution_id", executionID, "error", err)
			http.Error(w, "failed to get audit trail", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []domain.AuditEntry{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
		})
	})

	r.With(middleware.AdminTokenAuth(deps.AdminToken, logger)).Delete("/audit", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Audit.ClearAuditLog(r.Context()); err != nil {
			logger.Error("clear audit log failed", "error", err)
			http.Error(w, "failed to clear audit log", http.StatusInternalServerError)
			return
		}

		logger.Info("audit log cleared via API")
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON strictly decodes a single JSON object from the request body.
// An empty body is accepted only when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return nil
		}
		return io.ErrUnexpectedEOF
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errMultipleObjects
	}

	return nil
}

func isInvalidChain(err error) bool {
	return errors.Is(err, domain.ErrInvalidChain) ||
		errors.Is(err, domain.ErrDuplicateStepID) ||
		errors.Is(err, domain.ErrUnsupportedStepKind)
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
