package ui

import (
	"encoding/json"
	"net/http"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/harvester"
	"github.com/thep200/github-harvester/internal/tokenpool"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
	"gorm.io/gorm"
)

// SummarySource cung cấp kết quả của lần harvest gần nhất
type SummarySource interface {
	LastSummary() *harvester.Summary
}

// PoolStats cung cấp trạng thái các credential trong token pool
type PoolStats interface {
	Stats() []tokenpool.CredentialStats
}

// Handler quản lý các HTTP request của status server
type Handler struct {
	Logger log.Logger
	Config *cfg.Config
	MySQL  *db.Mysql
	db     *gorm.DB

	summary SummarySource
	pool    PoolStats
}

func NewHandler(logger log.Logger, config *cfg.Config, mysql *db.Mysql) (*Handler, error) {
	gdb, err := mysql.Db()
	if err != nil {
		return nil, err
	}

	return &Handler{
		Logger: logger,
		Config: config,
		MySQL:  mysql,
		db:     gdb,
	}, nil
}

// AttachHarvester gắn nguồn thống kê runtime khi server chạy chung
// process với harvester. Không gắn thì /api/stats chỉ có dữ liệu database.
func (h *Handler) AttachHarvester(summary SummarySource, pool PoolStats) {
	h.summary = summary
	h.pool = pool
}

// RegisterRoutes khai báo các route của status server
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/repos", h.getRepos)
	mux.HandleFunc("/api/contributors", h.getContributors)
	mux.HandleFunc("/api/orgs", h.getOrgs)
	mux.HandleFunc("/api/stats", h.getStats)
	mux.HandleFunc("/", h.getIndex)
}

func (h *Handler) getIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"name":    h.Config.App.Name,
		"version": h.Config.App.Version,
		"endpoints": []string{
			"/api/repos",
			"/api/contributors",
			"/api/orgs",
			"/api/stats",
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
