package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/outcome"
	"github.com/iago/food-search-pipeline/internal/service"
)

const maxBodyBytes = 64 << 10

type SearchService interface {
	Submit(ctx context.Context, tags []string) (service.SubmitResult, error)
	Get(ctx context.Context, id string) (*domain.SearchRequest, error)
}

type API struct {
	search SearchService
	checks []HealthCheck
}

func NewAPI(search SearchService, checks ...HealthCheck) *API {
	return &API{search: search, checks: checks}
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

// writeResult uses the result's status code as the HTTP status.
func writeResult(w http.ResponseWriter, result outcome.Result) {
	writeJSON(w, int(result.StatusCode), result)
}

func writeError(w http.ResponseWriter, err error) {
	writeResult(w, outcome.FromError(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(value); err != nil {
		return outcome.BadRequestf("invalid payload")
	}
	return nil
}
