package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

func handleHealth(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	type result struct {
		Status string `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		out := make(map[string]result, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Error("health check failed", "name", name, "error", err)
				out[name] = result{Status: "error"}
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = result{Status: "ok"}
		}
		writeJSON(w, status, out)
	}
}
