package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/iago/food-search-pipeline/internal/outcome"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	WriteHealth(w, r, api.checks)
}

// WriteHealth runs checks and answers 200 when all pass, 503 otherwise.
func WriteHealth(w http.ResponseWriter, r *http.Request, checks []HealthCheck) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	statuses := make(map[string]string, len(checks))
	healthy := true
	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			statuses[check.Name] = err.Error()
			healthy = false
			continue
		}
		statuses[check.Name] = "ok"
	}

	if !healthy {
		writeResult(w, outcome.Result{
			StatusCode: outcome.StatusCode(http.StatusServiceUnavailable),
			Message:    "unavailable",
			Data:       statuses,
		})
		return
	}
	writeResult(w, outcome.Success("ok", statuses))
}
