package harvester

import (
	"fmt"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/cache"
	githubapi "github.com/thep200/github-harvester/internal/github_api"
	"github.com/thep200/github-harvester/internal/reconcile"
	"github.com/thep200/github-harvester/internal/tokenpool"
	"github.com/thep200/github-harvester/pkg/db"
	kafkapkg "github.com/thep200/github-harvester/pkg/kafka"
	"github.com/thep200/github-harvester/pkg/log"
)

// FactoryHarvester lắp ráp harvester hoàn chỉnh theo chế độ giao kết quả:
// "direct" reconcile thẳng vào MySQL, "kafka" đẩy thực thể vào topic
// cho consumer xử lý.
func FactoryHarvester(mode string, logger log.Logger, config *cfg.Config, mysql *db.Mysql) (*Harvester, error) {
	tokens := config.GithubApi.AccessTokens
	quota := config.GithubApi.NominalQuota
	if len(tokens) == 0 {
		// Không có token thì chạy ẩn danh với quota 60 request/giờ
		tokens = []string{""}
		quota = 60
	}

	pool, err := tokenpool.NewPool(tokens, quota, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build token pool: %w", err)
	}

	apiCache, err := cache.NewCache(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	caller, err := githubapi.NewCaller(logger, config, pool, apiCache)
	if err != nil {
		return nil, err
	}

	store, err := reconcile.NewGormStore(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	reconciler, err := reconcile.NewReconciler(logger, config, store)
	if err != nil {
		return nil, err
	}

	var producers *Producers
	switch mode {
	case "direct":
		// Không cần producer, reconcile thẳng vào MySQL
	case "kafka":
		producers = &Producers{
			Repo:        kafkapkg.NewProducer(config, logger, config.Kafka.Producer.TopicRepo),
			Contributor: kafkapkg.NewProducer(config, logger, config.Kafka.Producer.TopicContributor),
			Org:         kafkapkg.NewProducer(config, logger, config.Kafka.Producer.TopicOrg),
		}
	default:
		return nil, fmt.Errorf("unsupported harvester mode: %s", mode)
	}

	harvester, err := NewHarvester(logger, config, caller, reconciler, producers)
	if err != nil {
		return nil, err
	}
	harvester.pool = pool
	return harvester, nil
}
