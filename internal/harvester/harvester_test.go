package harvester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-harvester/cfg"
	githubapi "github.com/thep200/github-harvester/internal/github_api"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/internal/reconcile"
	"github.com/thep200/github-harvester/pkg/log"
)

// fakeAPI trả dữ liệu dựng sẵn theo thứ tự gọi FetchAll, window nào
// vượt quá số batch dựng sẵn thì trả rỗng
type fakeAPI struct {
	mu           sync.Mutex
	batches      [][]model.FetchedEntity
	fetchCalls   int
	fetchErr     error
	users        map[string]*model.ContributorEntity
	orgs         map[string]*model.OrgEntity
	contributors map[string][]*model.ContributorEntity
	userErr      error
}

func (f *fakeAPI) FetchAll(ctx context.Context, query string, limit int) ([]model.FetchedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchCalls > len(f.batches) {
		return nil, nil
	}
	return f.batches[f.fetchCalls-1], nil
}

func (f *fakeAPI) GetUser(ctx context.Context, login string) (*model.ContributorEntity, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.users[login], nil
}

func (f *fakeAPI) GetOrganization(ctx context.Context, login string) (*model.OrgEntity, error) {
	return f.orgs[login], nil
}

func (f *fakeAPI) GetContributors(ctx context.Context, owner, repo string, limit int) ([]*model.ContributorEntity, error) {
	return f.contributors[owner+"/"+repo], nil
}

func (f *fakeAPI) RateLimit(ctx context.Context) (*githubapi.RateLimitResponse, error) {
	resp := &githubapi.RateLimitResponse{}
	resp.Resources.Core.Limit = 5000
	resp.Resources.Core.Remaining = 5000
	resp.Resources.Search.Limit = 30
	resp.Resources.Search.Remaining = 30
	return resp, nil
}

// memStore là Store trong bộ nhớ cho reconciler trong test
type memStore struct {
	mu   sync.Mutex
	rows map[model.Kind]map[int64]model.FetchedEntity
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[model.Kind]map[int64]model.FetchedEntity)}
}

func (m *memStore) GetExisting(kind model.Kind, ids []int64) (map[int64]model.FetchedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[int64]model.FetchedEntity)
	for _, id := range ids {
		if entity, ok := m.rows[kind][id]; ok {
			existing[id] = entity
		}
	}
	return existing, nil
}

func (m *memStore) BulkInsert(kind model.Kind, entities []model.FetchedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rows[kind] == nil {
		m.rows[kind] = make(map[int64]model.FetchedEntity)
	}
	for _, entity := range entities {
		m.rows[kind][entity.ExternalID()] = entity
	}
	return nil
}

func (m *memStore) InsertOne(entity model.FetchedEntity) error {
	return m.BulkInsert(entity.EntityKind(), []model.FetchedEntity{entity})
}

func (m *memStore) BulkUpdate(kind model.Kind, updates []reconcile.Update) error { return nil }
func (m *memStore) UpdateOne(kind model.Kind, update reconcile.Update) error     { return nil }

func (m *memStore) count(kind model.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[kind])
}

// fakePublisher ghi nhận các message publish theo key
type fakePublisher struct {
	mu       sync.Mutex
	messages map[string]int
	closed   bool
}

func (p *fakePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string]int)
	}
	p.messages[key]++
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func newTestHarvester(t *testing.T, api Fetcher, store reconcile.Store, producers *Producers) *Harvester {
	t.Helper()

	mockLoader, _ := cfg.NewMockLoader()
	config, err := mockLoader.Load()
	require.NoError(t, err)
	config.Harvester.Workers = 4

	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	reconciler, err := reconcile.NewReconciler(logger, config, store)
	require.NoError(t, err)

	h, err := NewHarvester(logger, config, api, reconciler, producers)
	require.NoError(t, err)
	return h
}

func testRepo(id int64, owner, ownerType string) *model.RepoEntity {
	return &model.RepoEntity{
		ID:         id,
		User:       owner,
		Name:       fmt.Sprintf("repo-%d", id),
		FullName:   fmt.Sprintf("%s/repo-%d", owner, id),
		StarCount:  int(id) * 10,
		OwnerLogin: owner,
		OwnerType:  ownerType,
	}
}

func TestRunDirectMode(t *testing.T) {
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "octo-org", "Organization"), testRepo(2, "dev-a", "User")},
		},
		users: map[string]*model.ContributorEntity{
			"dev-a": {ID: 100, Login: "dev-a", PublicRepos: 3},
		},
		orgs: map[string]*model.OrgEntity{
			"octo-org": {ID: 200, Login: "octo-org"},
		},
		contributors: map[string][]*model.ContributorEntity{
			"octo-org/repo-1": {{ID: 300, Login: "dev-b", Contributions: 9}},
		},
	}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 3, summary.Enriched) // 1 org + 1 user + 1 contributor
	assert.Equal(t, 2, store.count(model.KindRepository))
	assert.Equal(t, 2, store.count(model.KindContributor))
	assert.Equal(t, 1, store.count(model.KindOrganization))
	assert.Empty(t, summary.Fatal)
	assert.Same(t, summary, h.LastSummary())
}

func TestRunDedupsAcrossWindows(t *testing.T) {
	// Repo id 1 xuất hiện ở hai window, chỉ được tính một lần
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "dev-a", "User")},
			{testRepo(1, "dev-a", "User"), testRepo(2, "dev-a", "User")},
		},
	}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 2, store.count(model.KindRepository))
}

func TestRunEnrichmentDegradesOnFailure(t *testing.T) {
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "dev-a", "User")},
		},
		userErr: errors.New("user endpoint down"),
	}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	// Repo vẫn được lưu dù enrich owner thất bại
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 0, summary.Enriched)
	assert.Equal(t, 1, store.count(model.KindRepository))
}

func TestRunAuthenticationErrorIsFatal(t *testing.T) {
	api := &fakeAPI{
		fetchErr: &githubapi.AuthenticationError{Status: 401},
	}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)

	summary, err := h.Run(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, summary.Fatal)
	assert.Equal(t, 0, store.count(model.KindRepository))
}

func TestRunKafkaMode(t *testing.T) {
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "octo-org", "Organization")},
		},
		orgs: map[string]*model.OrgEntity{
			"octo-org": {ID: 200, Login: "octo-org"},
		},
	}
	repoPub := &fakePublisher{}
	orgPub := &fakePublisher{}
	contribPub := &fakePublisher{}
	store := newMemStore()

	h := newTestHarvester(t, api, store, &Producers{
		Repo:        repoPub,
		Contributor: contribPub,
		Org:         orgPub,
	})

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Published)
	assert.Equal(t, 1, repoPub.messages["repo"])
	assert.Equal(t, 1, orgPub.messages["org"])
	// Chế độ Kafka không ghi trực tiếp vào store
	assert.Equal(t, 0, store.count(model.KindRepository))

	require.NoError(t, h.Close())
	assert.True(t, repoPub.closed)
	assert.True(t, orgPub.closed)
	assert.True(t, contribPub.closed)
}

// fakeEventSource trả event dựng sẵn và ghi nhận repo id được hỏi
type fakeEventSource struct {
	mu      sync.Mutex
	events  []*model.EventEntity
	askedID []int64
	err     error
}

func (f *fakeEventSource) EventsForRepos(ctx context.Context, repoIDs []int64, from, to time.Time) ([]*model.EventEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askedID = append(f.askedID, repoIDs...)
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func TestRunSyncsAnalyticsEvents(t *testing.T) {
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "dev-a", "User")},
		},
	}
	source := &fakeEventSource{
		events: []*model.EventEntity{
			{ID: 900, Type: "PushEvent", RepoID: 1, RepoName: "dev-a/repo-1", CreatedAt: time.Now()},
			{ID: 901, Type: "WatchEvent", RepoID: 1, RepoName: "dev-a/repo-1", CreatedAt: time.Now()},
		},
	}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)
	h.AttachAnalytics(source, 7)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, source.askedID)
	assert.Equal(t, 2, summary.Events)
	assert.Equal(t, 2, store.count(model.KindEvent))
}

func TestRunToleratesAnalyticsFailure(t *testing.T) {
	api := &fakeAPI{
		batches: [][]model.FetchedEntity{
			{testRepo(1, "dev-a", "User")},
		},
	}
	source := &fakeEventSource{err: errors.New("scan budget exceeded")}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)
	h.AttachAnalytics(source, 7)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	// Repo vẫn được reconcile dù bước đồng bộ event thất bại
	assert.Equal(t, 0, summary.Events)
	assert.Equal(t, 1, store.count(model.KindRepository))
	assert.Empty(t, summary.Fatal)
}

func TestRunRespectsMaxRepos(t *testing.T) {
	var first []model.FetchedEntity
	for i := int64(1); i <= 5; i++ {
		first = append(first, testRepo(i, "dev-a", "User"))
	}
	api := &fakeAPI{batches: [][]model.FetchedEntity{first}}
	store := newMemStore()
	h := newTestHarvester(t, api, store, nil)
	h.maxRepos = 3

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Fetched)
}

func TestGenerateTimeWindows(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	windows := generateTimeWindows(now)
	require.NotEmpty(t, windows)

	// Window đầu kết thúc ở hiện tại, các window liền kề không hở
	assert.Equal(t, now, windows[0].endDate)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i].endDate, windows[i-1].startDate)
	}

	// Window cuối chạm mốc sàn
	assert.Equal(t, windowFloor, windows[len(windows)-1].startDate)
}

func TestBuildQuery(t *testing.T) {
	window := timeWindow{
		startDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		endDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "stars:>100 created:2024-01-01..2025-01-01", buildQuery(100, window))
}
