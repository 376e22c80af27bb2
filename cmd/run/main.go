package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/analytics"
	"github.com/thep200/github-harvester/internal/harvester"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/internal/ui"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

func main() {
	mode := flag.String("mode", "direct", "Delivery mode for harvested entities (direct, kafka)")
	statusPort := flag.Int("status-port", 0, "Port for the status server, 0 disables it")
	eventDays := flag.Int("event-days", 0, "Sync events of harvested repos from analytics for the last N days, 0 disables it")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// loader, _ := cfg.NewMockLoader()
	loader, _ := cfg.NewViperLoader()
	config, _ := loader.Load()
	mysql, _ := db.NewMysql(config)
	logger, _ := log.FactoryLogger(config.Log.Driver, config.Log.Level)
	repoMd, _ := model.NewRepo(config, logger, mysql)
	contributorMd, _ := model.NewContributor(config, logger, mysql)
	orgMd, _ := model.NewOrg(config, logger, mysql)
	eventMd, _ := model.NewEvent(config, logger, mysql)

	// Migrate database
	if err := mysql.Migrate(repoMd, contributorMd, orgMd, eventMd); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	harv, err := harvester.FactoryHarvester(*mode, logger, config, mysql)
	if err != nil {
		logger.Error(ctx, "Failed to build harvester: %v", err)
		os.Exit(1)
	}
	defer harv.Close()

	// Đồng bộ event từ analytics engine sau chu kỳ harvest khi được bật
	if *eventDays > 0 {
		engine, err := analytics.NewEngine(logger, config)
		if err != nil {
			logger.Error(ctx, "Failed to open analytics engine: %v", err)
			os.Exit(1)
		}
		defer engine.Close()
		harv.AttachAnalytics(engine, *eventDays)
	}

	// Status server chạy chung process khi được bật
	if *statusPort > 0 {
		server, err := ui.NewServer(logger, config, mysql, *statusPort)
		if err != nil {
			logger.Error(ctx, "Failed to create status server: %v", err)
			os.Exit(1)
		}
		handler, err := server.Handler()
		if err != nil {
			logger.Error(ctx, "Failed to create status handler: %v", err)
			os.Exit(1)
		}
		handler.AttachHarvester(harv, harv.Pool())
		go func() {
			if err := server.Start(); err != nil {
				logger.Error(ctx, "Status server stopped: %v", err)
			}
		}()
		defer func() {
			_ = server.Stop(context.Background())
		}()
	}

	// Cancel chu kỳ harvest khi nhận tín hiệu dừng
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn(ctx, "Received shutdown signal, stopping harvest")
		cancel()
	}()

	logger.Info(ctx, "Starting Github harvester in %s mode", *mode)
	if _, err := harv.Run(ctx); err != nil {
		logger.Error(ctx, "Harvest failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Harvest completed successfully")
}
