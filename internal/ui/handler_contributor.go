package ui

import (
	"net/http"
	"strconv"

	"github.com/thep200/github-harvester/internal/model"
)

type ContributorView struct {
	ID            int64  `json:"id"`
	Login         string `json:"login"`
	Name          string `json:"name"`
	Company       string `json:"company"`
	Contributions int    `json:"contributions"`
	Followers     int    `json:"followers"`
	UpdatedAt     string `json:"updatedAt"`
}

func (h *Handler) getContributors(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 500 {
		limit = 100
	}

	var contributors []model.Contributor
	result := h.db.Limit(limit).Order("contributions DESC").Find(&contributors)
	if result.Error != nil {
		h.Logger.Error(r.Context(), "Failed to fetch contributors: %v", result.Error)
		http.Error(w, "Failed to fetch contributors", http.StatusInternalServerError)
		return
	}

	var views []ContributorView
	for _, contributor := range contributors {
		views = append(views, ContributorView{
			ID:            contributor.ID,
			Login:         contributor.Login,
			Name:          contributor.Name,
			Company:       contributor.Company,
			Contributions: contributor.Contributions,
			Followers:     contributor.Followers,
			UpdatedAt:     contributor.UpdatedAt.Format("2006-01-02"),
		})
	}

	h.writeJSON(w, r, views)
}
