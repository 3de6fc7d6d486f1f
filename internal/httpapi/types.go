package httpapi

import (
	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/proxy"
)

type SearchRequest struct {
	Keywords     []string          `json:"keywords" validate:"max=20,dive,max=200"`
	Location     string            `json:"location" validate:"max=200"`
	Filters      map[string]string `json:"filters" validate:"max=20"`
	Sources      []string          `json:"sources" validate:"max=50,dive,max=64"`
	MaxResults   int               `json:"max_results" validate:"min=0,max=1000"`
	ForceRefresh bool              `json:"force_refresh"`
}

func (r SearchRequest) Query() domain.Query {
	return domain.Query{
		Keywords:     r.Keywords,
		Location:     r.Location,
		Filters:      r.Filters,
		Sources:      r.Sources,
		MaxResults:   r.MaxResults,
		ForceRefresh: r.ForceRefresh,
	}.Normalized()
}

type SearchStatus struct {
	Running    int    `json:"running"`
	LastRunAt  string `json:"last_run_at"`
	LastOkAt   string `json:"last_ok_at"`
	LastRunID  string `json:"last_run_id"`
	LastFound  int    `json:"last_found"`
	LastCached bool   `json:"last_cached"`
	LastError  string `json:"last_error"`
}

type SourceInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type PoolsResponse struct {
	Browser *browser.Stats `json:"browser"`
	Proxy   *proxy.Stats   `json:"proxy"`
}
