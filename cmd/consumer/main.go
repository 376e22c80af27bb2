package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/analytics"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/kafka"
	"github.com/thep200/github-harvester/pkg/log"
)

func main() {
	// Parse command line arguments
	consumerType := flag.String("type", "", "Type of consumer to run (repo, contributor, org, event)")
	flag.Parse()

	if *consumerType == "" {
		fmt.Println("Please specify a consumer type: -type=[repo|contributor|org|event]")
		os.Exit(1)
	}

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.FactoryLogger(config.Log.Driver, config.Log.Level)

	// Setup database
	mysql, _ := db.NewMysql(config)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create models
	repoModel, _ := model.NewRepo(config, logger, mysql)
	contributorModel, _ := model.NewContributor(config, logger, mysql)
	orgModel, _ := model.NewOrg(config, logger, mysql)
	eventModel, _ := model.NewEvent(config, logger, mysql)

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the appropriate consumer based on type
	switch *consumerType {
	case "repo":
		startRepoConsumer(ctx, config, logger, repoModel)
	case "contributor":
		startContributorConsumer(ctx, config, logger, contributorModel)
	case "org":
		startOrgConsumer(ctx, config, logger, orgModel)
	case "event":
		startEventConsumer(ctx, config, logger, eventModel)
	default:
		logger.Error(ctx, "Unknown consumer type: %s", *consumerType)
		os.Exit(1)
	}

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startRepoConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, repoModel *model.Repo) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicRepo, "repo-consumer-group")

	// Channel for collecting messages in batches
	batchSize := 100
	batchTimeout := 5 * time.Second

	// Channel to collect entities for batch processing
	entities := make(chan *model.RepoEntity, batchSize*2)

	// Batch processor
	go processBatches(ctx, entities, batchSize, batchTimeout, func(batch []*model.RepoEntity) {
		logger.Info(ctx, "Processing batch of %d repositories", len(batch))
		if err := repoModel.CreateBatch(batch); err != nil {
			logger.Error(ctx, "Failed to save batch of repositories: %v", err)
		} else {
			logger.Info(ctx, "Successfully saved batch of %d repositories", len(batch))
		}
	})

	// Register handler for repo messages
	consumer.RegisterHandler("repo", func(data []byte) error {
		var repo model.RepoEntity
		if err := json.Unmarshal(data, &repo); err != nil {
			return fmt.Errorf("failed to unmarshal repo message: %w", err)
		}

		// Send to batch channel instead of processing individually
		select {
		case entities <- &repo:
			// Entity added to batch
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Repo consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Repository consumer started successfully")
}

func startContributorConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, contributorModel *model.Contributor) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicContributor, "contributor-consumer-group")

	batchSize := 100
	batchTimeout := 5 * time.Second
	entities := make(chan *model.ContributorEntity, batchSize*2)

	go processBatches(ctx, entities, batchSize, batchTimeout, func(batch []*model.ContributorEntity) {
		logger.Info(ctx, "Processing batch of %d contributors", len(batch))
		if err := contributorModel.CreateBatch(batch); err != nil {
			logger.Error(ctx, "Failed to save batch of contributors: %v", err)
		} else {
			logger.Info(ctx, "Successfully saved batch of %d contributors", len(batch))
		}
	})

	consumer.RegisterHandler("contributor", func(data []byte) error {
		var contributor model.ContributorEntity
		if err := json.Unmarshal(data, &contributor); err != nil {
			return fmt.Errorf("failed to unmarshal contributor message: %w", err)
		}

		select {
		case entities <- &contributor:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Contributor consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Contributor consumer started successfully")
}

func startOrgConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, orgModel *model.Org) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicOrg, "org-consumer-group")

	batchSize := 100
	batchTimeout := 5 * time.Second
	entities := make(chan *model.OrgEntity, batchSize*2)

	go processBatches(ctx, entities, batchSize, batchTimeout, func(batch []*model.OrgEntity) {
		logger.Info(ctx, "Processing batch of %d orgs", len(batch))
		if err := orgModel.CreateBatch(batch); err != nil {
			logger.Error(ctx, "Failed to save batch of orgs: %v", err)
		} else {
			logger.Info(ctx, "Successfully saved batch of %d orgs", len(batch))
		}
	})

	consumer.RegisterHandler("org", func(data []byte) error {
		var org model.OrgEntity
		if err := json.Unmarshal(data, &org); err != nil {
			return fmt.Errorf("failed to unmarshal org message: %w", err)
		}

		select {
		case entities <- &org:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Org consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Org consumer started successfully")
}

// Event consumer ghi song song vào MySQL và analytics engine để
// có thể query theo partition ngày
func startEventConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, eventModel *model.Event) {
	engine, err := analytics.NewEngine(logger, config)
	if err != nil {
		logger.Error(ctx, "Failed to open analytics engine: %v", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicEvent, "event-consumer-group")

	batchSize := 100
	batchTimeout := 5 * time.Second
	entities := make(chan *model.EventEntity, batchSize*2)

	go processBatches(ctx, entities, batchSize, batchTimeout, func(batch []*model.EventEntity) {
		logger.Info(ctx, "Processing batch of %d events", len(batch))
		if err := eventModel.CreateBatch(batch); err != nil {
			logger.Error(ctx, "Failed to save batch of events: %v", err)
		}
		if err := engine.IngestEvents(ctx, batch); err != nil {
			logger.Error(ctx, "Failed to ingest batch of events into analytics: %v", err)
		}
	})

	consumer.RegisterHandler("event", func(data []byte) error {
		var event model.EventEntity
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("failed to unmarshal event message: %w", err)
		}

		select {
		case entities <- &event:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Event consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Event consumer started successfully")
}

// processBatches gom entity từ channel thành batch theo kích thước
// hoặc theo timeout rồi giao cho hàm flush
func processBatches[T any](ctx context.Context, entities <-chan T, batchSize int,
	batchTimeout time.Duration, flush func([]T)) {

	var batch []T
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Process remaining entities before exiting
			if len(batch) > 0 {
				flush(batch)
			}
			return

		case entity := <-entities:
			batch = append(batch, entity)

			// Flush batch when it reaches the desired size
			if len(batch) >= batchSize {
				flush(batch)
				batch = nil // Reset batch
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			// Flush batch on timeout if there are any entities
			if len(batch) > 0 {
				flush(batch)
				batch = nil // Reset batch
			}
			timer.Reset(batchTimeout)
		}
	}
}
