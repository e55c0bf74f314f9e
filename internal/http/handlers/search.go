package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/outcome"
)

type searchRequestView struct {
	ID         string     `json:"id"`
	Tags       []string   `json:"tags"`
	Status     string     `json:"status"`
	FilePath   string     `json:"filePath,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Search accepts a JSON array of tags and starts a pipeline run. It returns
// as soon as the request is published.
func (api *API) Search(w http.ResponseWriter, r *http.Request) {
	var tags []string
	if err := decodeJSON(w, r, &tags); err != nil {
		writeError(w, err)
		return
	}

	result, err := api.search.Submit(r.Context(), tags)
	if err != nil {
		if outcome.StatusOf(err) == outcome.InternalServerError {
			logger.FromContext(r.Context()).Error("search submission failed", zap.Error(err))
		}
		writeError(w, err)
		return
	}

	if result.Cached {
		writeResult(w, outcome.Success("search result available", map[string]any{
			"filePath": result.FilePath,
			"cached":   true,
		}))
		return
	}
	writeResult(w, outcome.Success("search request accepted", map[string]any{
		"id": result.ID.String(),
	}))
}

func (api *API) SearchStatus(w http.ResponseWriter, r *http.Request) {
	record, err := api.search.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, outcome.Success("Done!", searchRequestView{
		ID:         record.ID.String(),
		Tags:       record.Tags,
		Status:     string(record.Status),
		FilePath:   record.FilePath,
		CreatedAt:  record.CreatedAt,
		FinishedAt: record.FinishedAt,
	}))
}
