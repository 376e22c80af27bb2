// Gói harvester điều phối một chu kỳ thu thập: chia trục thời gian
// thành các window, fetch repository theo từng window, enrich chủ sở
// hữu và contributor, rồi giao toàn bộ thực thể cho reconciler hoặc
// đẩy vào Kafka cho consumer xử lý.

package harvester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thep200/github-harvester/cfg"
	githubapi "github.com/thep200/github-harvester/internal/github_api"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/internal/reconcile"
	"github.com/thep200/github-harvester/internal/tokenpool"
	"github.com/thep200/github-harvester/pkg/log"
)

// Số contributor tối đa enrich cho mỗi repository
const maxContributorsPerRepo = 10

// Fetcher là phần contract của API client mà harvester cần
type Fetcher interface {
	FetchAll(ctx context.Context, query string, limit int) ([]model.FetchedEntity, error)
	GetUser(ctx context.Context, login string) (*model.ContributorEntity, error)
	GetOrganization(ctx context.Context, login string) (*model.OrgEntity, error)
	GetContributors(ctx context.Context, owner, repo string, limit int) ([]*model.ContributorEntity, error)
	RateLimit(ctx context.Context) (*githubapi.RateLimitResponse, error)
}

// Publisher là contract của Kafka producer cho một topic
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// Producers gom các producer theo loại thực thể. Nil nghĩa là harvester
// reconcile trực tiếp vào database thay vì đẩy qua Kafka.
type Producers struct {
	Repo        Publisher
	Contributor Publisher
	Org         Publisher
}

// EventSource là phần contract của analytics engine mà harvester cần
// để đồng bộ event của các repo vừa thu thập về database chính
type EventSource interface {
	EventsForRepos(ctx context.Context, repoIDs []int64, from, to time.Time) ([]*model.EventEntity, error)
}

type Harvester struct {
	Logger     log.Logger
	Config     *cfg.Config
	Api        Fetcher
	Reconciler *reconcile.Reconciler

	producers *Producers

	enrichWorkers chan struct{}
	enrichWg      sync.WaitGroup

	processedRepoIDs  map[int64]bool
	processedOwners   map[string]bool
	processedUserIDs  map[int64]bool
	processedLock     sync.RWMutex

	enrichedCount int32

	maxRepos int
	minStars int

	lastSummary   *Summary
	lastSummaryMu sync.RWMutex

	pool *tokenpool.Pool

	events        EventSource
	eventLookback time.Duration
}

func NewHarvester(logger log.Logger, config *cfg.Config, api Fetcher, reconciler *reconcile.Reconciler, producers *Producers) (*Harvester, error) {
	workers := config.Harvester.Workers
	if workers <= 0 {
		workers = 10
	}

	maxRepos := config.Harvester.MaxRepos
	if maxRepos <= 0 {
		maxRepos = 5000
	}

	minStars := config.Harvester.MinStars
	if minStars <= 0 {
		minStars = 50
	}

	return &Harvester{
		Logger:           logger,
		Config:           config,
		Api:              api,
		Reconciler:       reconciler,
		producers:        producers,
		enrichWorkers:    make(chan struct{}, workers),
		processedRepoIDs: make(map[int64]bool, maxRepos),
		processedOwners:  make(map[string]bool, 1024),
		processedUserIDs: make(map[int64]bool, 4096),
		maxRepos:         maxRepos,
		minStars:         minStars,
	}, nil
}

// Pool trả về token pool của harvester, nil khi lắp ráp thủ công không qua factory
func (h *Harvester) Pool() *tokenpool.Pool {
	return h.pool
}

// AttachAnalytics gắn analytics engine để sau mỗi chu kỳ harvest, event
// của các repo vừa thu thập được reconcile về database như thực thể API
func (h *Harvester) AttachAnalytics(source EventSource, lookbackDays int) {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	h.events = source
	h.eventLookback = time.Duration(lookbackDays) * 24 * time.Hour
}

// LastSummary trả về kết quả của lần chạy gần nhất, nil nếu chưa chạy
func (h *Harvester) LastSummary() *Summary {
	h.lastSummaryMu.RLock()
	defer h.lastSummaryMu.RUnlock()
	return h.lastSummary
}

func (h *Harvester) setSummary(s *Summary) {
	h.lastSummaryMu.Lock()
	defer h.lastSummaryMu.Unlock()
	h.lastSummary = s
}

// Run thực hiện một chu kỳ harvest đầy đủ. Lỗi từng window hoặc từng
// thực thể chỉ làm giảm kết quả, lỗi authentication dừng cả chu kỳ.
func (h *Harvester) Run(ctx context.Context) (*Summary, error) {
	summary := newSummary()
	h.setSummary(summary)
	defer summary.finish()
	defer summary.logResults(ctx, h.Logger)

	// Hỏi quota trước khi bắt đầu để pool có số liệu thật thay vì ước lượng
	if rl, err := h.Api.RateLimit(ctx); err != nil {
		h.Logger.Warn(ctx, "Failed to query rate limit before harvesting: %v", err)
	} else {
		h.Logger.Info(ctx, "Quota at start: core %d/%d, search %d/%d",
			rl.Resources.Core.Remaining, rl.Resources.Core.Limit,
			rl.Resources.Search.Remaining, rl.Resources.Search.Limit)
	}

	// Phase 1: fetch repository theo từng window thời gian
	h.Logger.Info(ctx, "===== Phase 1: thu thập repositories =====")
	repos, err := h.collectRepositories(ctx, summary)
	if err != nil {
		summary.Fatal = err.Error()
		return summary, err
	}
	summary.Fetched = len(repos)

	// Phase 2: enrich chủ sở hữu và contributor
	h.Logger.Info(ctx, "===== Phase 2: enrich owners và contributors =====")
	enriched := h.enrichEntities(ctx, repos)
	summary.Enriched = int(atomic.LoadInt32(&h.enrichedCount))

	// Phase 3: giao kết quả
	h.Logger.Info(ctx, "===== Phase 3: giao kết quả =====")
	all := make([]model.FetchedEntity, 0, len(repos)+len(enriched))
	for _, repo := range repos {
		all = append(all, repo)
	}
	all = append(all, enriched...)

	if h.producers != nil {
		published, err := h.publish(ctx, all)
		summary.Published = published
		if err != nil {
			summary.Fatal = err.Error()
			return summary, err
		}
		return summary, nil
	}

	stats, err := h.Reconciler.Reconcile(ctx, all)
	summary.Stats = stats
	if err != nil {
		summary.Fatal = err.Error()
		return summary, err
	}

	// Phase 4: đồng bộ event từ analytics engine nếu được gắn
	if h.events != nil {
		h.syncEvents(ctx, repos, summary)
	}
	return summary, nil
}

// syncEvents kéo event gần đây của các repo vừa thu thập từ analytics
// engine rồi reconcile như thực thể API. Lỗi chỉ làm giảm kết quả.
func (h *Harvester) syncEvents(ctx context.Context, repos []*model.RepoEntity, summary *Summary) {
	if len(repos) == 0 {
		return
	}
	h.Logger.Info(ctx, "===== Phase 4: đồng bộ events từ analytics =====")

	repoIDs := make([]int64, 0, len(repos))
	for _, repo := range repos {
		repoIDs = append(repoIDs, repo.ID)
	}

	now := time.Now()
	events, err := h.events.EventsForRepos(ctx, repoIDs, now.Add(-h.eventLookback), now)
	if err != nil {
		h.Logger.Warn(ctx, "Failed to load events from analytics: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	entities := make([]model.FetchedEntity, 0, len(events))
	for _, event := range events {
		entities = append(entities, event)
	}

	stats, err := h.Reconciler.Reconcile(ctx, entities)
	summary.Events = len(events)
	summary.Stats.Inserted += stats.Inserted
	summary.Stats.Updated += stats.Updated
	summary.Stats.Unchanged += stats.Unchanged
	summary.Stats.Failed += stats.Failed
	if err != nil {
		h.Logger.Warn(ctx, "Failed to reconcile analytics events: %v", err)
	}
}

func (h *Harvester) collectRepositories(ctx context.Context, summary *Summary) ([]*model.RepoEntity, error) {
	var repos []*model.RepoEntity

	for _, window := range generateTimeWindows(nowUTC()) {
		if len(repos) >= h.maxRepos {
			break
		}
		if err := ctx.Err(); err != nil {
			return repos, err
		}

		query := buildQuery(h.minStars, window)
		entities, err := h.Api.FetchAll(ctx, query, h.maxRepos-len(repos))
		summary.Windows++

		if errors.Is(err, githubapi.ErrResultCeiling) {
			// Vẫn dùng phần đã fetch được, phần còn lại của window ngoài tầm với
			err = nil
		}
		if err != nil {
			if githubapi.IsAuthentication(err) {
				return repos, fmt.Errorf("authentication failed while fetching window %s: %w", query, err)
			}
			// Window lỗi thì bỏ qua, các window còn lại vẫn chạy
			h.Logger.Error(ctx, "Failed to fetch window %q: %v", query, err)
			continue
		}

		for _, entity := range entities {
			if len(repos) >= h.maxRepos {
				break
			}
			repo, ok := entity.(*model.RepoEntity)
			if !ok {
				continue
			}
			if h.isRepoProcessed(repo.ID) {
				continue
			}
			h.markRepoProcessed(repo.ID)
			repos = append(repos, repo)
		}

		h.Logger.Info(ctx, "Window %q contributed %d repositories, total %d/%d",
			query, len(entities), len(repos), h.maxRepos)
	}

	return repos, nil
}

// enrichEntities fetch hồ sơ owner và danh sách contributor cho các repo
// qua worker pool. Mọi lỗi enrich đều degrade: log warning rồi bỏ qua.
func (h *Harvester) enrichEntities(ctx context.Context, repos []*model.RepoEntity) []model.FetchedEntity {
	var mu sync.Mutex
	var enriched []model.FetchedEntity

	add := func(entities ...model.FetchedEntity) {
		mu.Lock()
		defer mu.Unlock()
		enriched = append(enriched, entities...)
		atomic.AddInt32(&h.enrichedCount, int32(len(entities)))
	}

	for _, repo := range repos {
		repo := repo

		if !h.isOwnerProcessed(repo.OwnerLogin) {
			h.markOwnerProcessed(repo.OwnerLogin)
			h.spawnEnrichWorker(ctx, func() {
				h.enrichOwner(ctx, repo, add)
			})
		}

		h.spawnEnrichWorker(ctx, func() {
			h.enrichContributors(ctx, repo, add)
		})
	}

	h.enrichWg.Wait()
	return enriched
}

func (h *Harvester) spawnEnrichWorker(ctx context.Context, fn func()) {
	select {
	case h.enrichWorkers <- struct{}{}:
	case <-ctx.Done():
		return
	}

	h.enrichWg.Add(1)
	go func() {
		defer h.enrichWg.Done()
		defer func() { <-h.enrichWorkers }()
		fn()
	}()
}

func (h *Harvester) enrichOwner(ctx context.Context, repo *model.RepoEntity, add func(...model.FetchedEntity)) {
	if repo.OwnerLogin == "" {
		return
	}

	if repo.OwnerType == "Organization" {
		org, err := h.Api.GetOrganization(ctx, repo.OwnerLogin)
		if err != nil {
			h.Logger.Warn(ctx, "Failed to enrich organization %s: %v", repo.OwnerLogin, err)
			return
		}
		if org == nil {
			return
		}
		add(org)
		return
	}

	user, err := h.Api.GetUser(ctx, repo.OwnerLogin)
	if err != nil {
		h.Logger.Warn(ctx, "Failed to enrich user %s: %v", repo.OwnerLogin, err)
		return
	}
	if user == nil {
		return
	}
	add(user)
}

func (h *Harvester) enrichContributors(ctx context.Context, repo *model.RepoEntity, add func(...model.FetchedEntity)) {
	contributors, err := h.Api.GetContributors(ctx, repo.User, repo.Name, maxContributorsPerRepo)
	if err != nil {
		h.Logger.Warn(ctx, "Failed to fetch contributors of %s/%s: %v", repo.User, repo.Name, err)
		return
	}

	var fresh []model.FetchedEntity
	h.processedLock.Lock()
	for _, contributor := range contributors {
		if h.processedUserIDs[contributor.ID] {
			continue
		}
		h.processedUserIDs[contributor.ID] = true
		fresh = append(fresh, contributor)
	}
	h.processedLock.Unlock()

	if len(fresh) > 0 {
		add(fresh...)
	}
}

// publish đẩy thực thể vào topic tương ứng theo loại
func (h *Harvester) publish(ctx context.Context, entities []model.FetchedEntity) (int, error) {
	published := 0
	for _, entity := range entities {
		var producer Publisher
		var key string

		switch entity.EntityKind() {
		case model.KindRepository:
			producer, key = h.producers.Repo, "repo"
		case model.KindContributor:
			producer, key = h.producers.Contributor, "contributor"
		case model.KindOrganization:
			producer, key = h.producers.Org, "org"
		default:
			continue
		}
		if producer == nil {
			continue
		}

		if err := h.publishOne(ctx, producer, key, entity); err != nil {
			if ctx.Err() != nil {
				return published, ctx.Err()
			}
			h.Logger.Error(ctx, "Failed to publish %s entity %d: %v", entity.EntityKind(), entity.ExternalID(), err)
			continue
		}
		published++
	}
	return published, nil
}

func (h *Harvester) publishOne(ctx context.Context, producer Publisher, key string, entity model.FetchedEntity) error {
	return producer.Publish(ctx, key, entity)
}

// Close đóng các producer nếu harvester chạy ở chế độ Kafka
func (h *Harvester) Close() error {
	if h.producers == nil {
		return nil
	}

	var firstErr error
	for _, producer := range []Publisher{h.producers.Repo, h.producers.Contributor, h.producers.Org} {
		if producer == nil {
			continue
		}
		if err := producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Harvester) isRepoProcessed(id int64) bool {
	h.processedLock.RLock()
	defer h.processedLock.RUnlock()
	return h.processedRepoIDs[id]
}

func (h *Harvester) markRepoProcessed(id int64) {
	h.processedLock.Lock()
	defer h.processedLock.Unlock()
	h.processedRepoIDs[id] = true
}

func (h *Harvester) isOwnerProcessed(login string) bool {
	h.processedLock.RLock()
	defer h.processedLock.RUnlock()
	return h.processedOwners[login]
}

func (h *Harvester) markOwnerProcessed(login string) {
	h.processedLock.Lock()
	defer h.processedLock.Unlock()
	h.processedOwners[login] = true
}
