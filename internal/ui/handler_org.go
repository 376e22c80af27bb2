package ui

import (
	"net/http"
	"strconv"

	"github.com/thep200/github-harvester/internal/model"
)

type OrgView struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	PublicRepos int    `json:"publicRepos"`
	Followers   int    `json:"followers"`
	UpdatedAt   string `json:"updatedAt"`
}

func (h *Handler) getOrgs(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 500 {
		limit = 100
	}

	var orgs []model.Org
	result := h.db.Limit(limit).Order("followers DESC").Find(&orgs)
	if result.Error != nil {
		h.Logger.Error(r.Context(), "Failed to fetch organizations: %v", result.Error)
		http.Error(w, "Failed to fetch organizations", http.StatusInternalServerError)
		return
	}

	var views []OrgView
	for _, org := range orgs {
		views = append(views, OrgView{
			ID:          org.ID,
			Login:       org.Login,
			Name:        org.Name,
			Location:    org.Location,
			PublicRepos: org.PublicRepos,
			Followers:   org.Followers,
			UpdatedAt:   org.UpdatedAt.Format("2006-01-02"),
		})
	}

	h.writeJSON(w, r, views)
}
