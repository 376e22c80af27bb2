package ui

import (
	"net/http"

	"github.com/thep200/github-harvester/internal/model"
)

// getStats trả về số lượng bản ghi theo bảng, trạng thái token pool và
// kết quả lần harvest gần nhất nếu harvester chạy cùng process
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	var repoCount, contributorCount, orgCount, eventCount int64
	h.db.Model(&model.Repo{}).Count(&repoCount)
	h.db.Model(&model.Contributor{}).Count(&contributorCount)
	h.db.Model(&model.Org{}).Count(&orgCount)
	h.db.Model(&model.Event{}).Count(&eventCount)

	response := map[string]interface{}{
		"database": map[string]int64{
			"repos":        repoCount,
			"contributors": contributorCount,
			"orgs":         orgCount,
			"events":       eventCount,
		},
	}

	if h.pool != nil {
		response["credentials"] = h.pool.Stats()
	}
	if h.summary != nil {
		if summary := h.summary.LastSummary(); summary != nil {
			response["last_run"] = summary
		}
	}

	h.writeJSON(w, r, response)
}
