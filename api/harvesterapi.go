// Package api cung cấp API public để nhúng harvester vào chương trình khác
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/harvester"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

// HarvestStats chứa thống kê về chu kỳ harvest
type HarvestStats struct {
	Mode      string    `json:"mode"`
	IsRunning bool      `json:"isRunning"`
	StartTime time.Time `json:"startTime"`
	Duration  string    `json:"duration"`
	Fetched   int       `json:"fetched"`
	Enriched  int       `json:"enriched"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	LastError string    `json:"lastError"`
}

// HarvesterAPI cung cấp các thao tác để điều khiển harvester từ bên ngoài
type HarvesterAPI struct {
	ctx        context.Context
	config     *cfg.Config
	logger     log.Logger
	mysql      *db.Mysql
	harvesters map[string]*harvester.Harvester

	statsMu    sync.RWMutex
	harvesting bool
	stats      *HarvestStats
	cancelRun  context.CancelFunc
}

// NewHarvesterAPI tạo một instance mới của HarvesterAPI
func NewHarvesterAPI() *HarvesterAPI {
	return &HarvesterAPI{
		harvesters: make(map[string]*harvester.Harvester),
		stats:      &HarvestStats{},
	}
}

// Initialize khởi tạo các thành phần cần thiết cho harvester
func (a *HarvesterAPI) Initialize(ctx context.Context) error {
	a.ctx = ctx

	var err error

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	a.config, err = loader.Load()
	if err != nil {
		a.logger, _ = log.NewCslLogger()
		a.logger.Error(a.ctx, "Failed to load configuration: %v", err)
		return err
	}

	// Set up logger
	a.logger, err = log.FactoryLogger(a.config.Log.Driver, a.config.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Set up database
	a.mysql, err = db.NewMysql(a.config)
	if err != nil {
		a.logger.Error(a.ctx, "Failed to connect to database: %v", err)
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Khởi tạo harvester cho từng chế độ giao kết quả, chế độ nào
	// lỗi thì bỏ qua miễn là còn ít nhất một chế độ chạy được
	modes := []string{"direct"}
	if len(a.config.Kafka.Brokers) > 0 {
		modes = append(modes, "kafka")
	}
	for _, mode := range modes {
		h, err := harvester.FactoryHarvester(mode, a.logger, a.config, a.mysql)
		if err != nil {
			a.logger.Error(a.ctx, "Failed to create %s harvester: %v", mode, err)
			continue
		}
		a.harvesters[mode] = h
	}
	if len(a.harvesters) == 0 {
		return errors.New("failed to initialize any harvester")
	}

	// Migrate database tables
	return a.migrateDatabase()
}

// migrateDatabase đảm bảo các bảng cần thiết tồn tại
func (a *HarvesterAPI) migrateDatabase() error {
	if a.mysql == nil {
		return errors.New("database connection not initialized")
	}

	repoMd, err := model.NewRepo(a.config, a.logger, a.mysql)
	if err != nil {
		return fmt.Errorf("failed to create repo model: %w", err)
	}

	contributorMd, err := model.NewContributor(a.config, a.logger, a.mysql)
	if err != nil {
		return fmt.Errorf("failed to create contributor model: %w", err)
	}

	orgMd, err := model.NewOrg(a.config, a.logger, a.mysql)
	if err != nil {
		return fmt.Errorf("failed to create org model: %w", err)
	}

	eventMd, err := model.NewEvent(a.config, a.logger, a.mysql)
	if err != nil {
		return fmt.Errorf("failed to create event model: %w", err)
	}

	return a.mysql.Migrate(repoMd, contributorMd, orgMd, eventMd)
}

// StartHarvest bắt đầu một chu kỳ harvest với chế độ được chỉ định
func (a *HarvesterAPI) StartHarvest(mode string) (string, error) {
	a.statsMu.RLock()
	isRunning := a.harvesting
	a.statsMu.RUnlock()

	if isRunning {
		return "Harvest is already in progress", nil
	}

	selected, ok := a.harvesters[mode]
	if !ok {
		return "", errors.New("harvester mode is not initialized: " + mode)
	}

	runCtx, cancel := context.WithCancel(a.ctx)

	a.statsMu.Lock()
	a.harvesting = true
	a.cancelRun = cancel
	a.stats = &HarvestStats{
		Mode:      mode,
		IsRunning: true,
		StartTime: time.Now(),
	}
	a.statsMu.Unlock()

	// Start harvesting in a goroutine
	go func(h *harvester.Harvester) {
		summary, err := h.Run(runCtx)
		cancel()

		a.updateStats(func(stats *HarvestStats) {
			stats.IsRunning = false
			if summary != nil {
				stats.Fetched = summary.Fetched
				stats.Enriched = summary.Enriched
				stats.Inserted = summary.Stats.Inserted
				stats.Updated = summary.Stats.Updated
			}
			if err != nil {
				stats.LastError = err.Error()
			}
		})

		a.statsMu.Lock()
		a.harvesting = false
		a.cancelRun = nil
		a.statsMu.Unlock()
	}(selected)

	return "Started harvest in " + mode + " mode", nil
}

// StopHarvest dừng chu kỳ harvest đang chạy
func (a *HarvesterAPI) StopHarvest() (string, error) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	if !a.harvesting || a.cancelRun == nil {
		return "No harvest is in progress", nil
	}

	a.cancelRun()
	return "Stopping harvest (may take some time to complete)", nil
}

// GetHarvestStats trả về thống kê về chu kỳ harvest
func (a *HarvesterAPI) GetHarvestStats() (*HarvestStats, error) {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()

	if a.stats == nil {
		return &HarvestStats{}, nil
	}

	// Calculate duration if harvest is running
	stats := *a.stats
	if stats.IsRunning {
		stats.Duration = time.Since(stats.StartTime).String()
	}

	return &stats, nil
}

// updateStats cập nhật thống kê một cách an toàn
func (a *HarvesterAPI) updateStats(updateFn func(*HarvestStats)) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	if a.stats == nil {
		a.stats = &HarvestStats{}
	}

	updateFn(a.stats)
}

// GetDatabaseStatus kiểm tra trạng thái kết nối cơ sở dữ liệu
func (a *HarvesterAPI) GetDatabaseStatus() (string, error) {
	if a.mysql == nil {
		return "Database not initialized", nil
	}

	gdb, err := a.mysql.Db()
	if err != nil {
		return "Database error: " + err.Error(), err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return "Database error: " + err.Error(), err
	}

	if err := sqlDB.Ping(); err != nil {
		return "Database not connected: " + err.Error(), err
	}

	return "Database connected", nil
}
