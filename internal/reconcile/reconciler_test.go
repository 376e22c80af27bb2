package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/log"
)

// fakeStore giữ thực thể trong bộ nhớ và cho phép ép lỗi theo id
// để kiểm tra đường fallback từng dòng
type fakeStore struct {
	rows        map[model.Kind]map[int64]model.FetchedEntity
	failIDs     map[int64]bool
	updates     []Update
	bulkInserts int
	oneInserts  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:    make(map[model.Kind]map[int64]model.FetchedEntity),
		failIDs: make(map[int64]bool),
	}
}

func (f *fakeStore) GetExisting(kind model.Kind, ids []int64) (map[int64]model.FetchedEntity, error) {
	existing := make(map[int64]model.FetchedEntity)
	for _, id := range ids {
		if entity, ok := f.rows[kind][id]; ok {
			existing[id] = entity
		}
	}
	return existing, nil
}

func (f *fakeStore) BulkInsert(kind model.Kind, entities []model.FetchedEntity) error {
	f.bulkInserts++
	for _, entity := range entities {
		if f.failIDs[entity.ExternalID()] {
			return fmt.Errorf("bulk insert failed on entity %d", entity.ExternalID())
		}
	}
	for _, entity := range entities {
		f.put(kind, entity)
	}
	return nil
}

func (f *fakeStore) InsertOne(entity model.FetchedEntity) error {
	f.oneInserts++
	if f.failIDs[entity.ExternalID()] {
		return errors.New("insert rejected")
	}
	f.put(entity.EntityKind(), entity)
	return nil
}

func (f *fakeStore) BulkUpdate(kind model.Kind, updates []Update) error {
	for _, update := range updates {
		if f.failIDs[update.ID] {
			return fmt.Errorf("bulk update failed on entity %d", update.ID)
		}
	}
	f.updates = append(f.updates, updates...)
	return nil
}

func (f *fakeStore) UpdateOne(kind model.Kind, update Update) error {
	if f.failIDs[update.ID] {
		return errors.New("update rejected")
	}
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeStore) put(kind model.Kind, entity model.FetchedEntity) {
	if f.rows[kind] == nil {
		f.rows[kind] = make(map[int64]model.FetchedEntity)
	}
	f.rows[kind][entity.ExternalID()] = entity
}

func newTestReconciler(t *testing.T, store Store) *Reconciler {
	t.Helper()

	mockLoader, _ := cfg.NewMockLoader()
	config, err := mockLoader.Load()
	require.NoError(t, err)

	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	reconciler, err := NewReconciler(logger, config, store)
	require.NoError(t, err)
	return reconciler
}

func repoEntity(id int64, stars int) *model.RepoEntity {
	return &model.RepoEntity{
		ID:        id,
		User:      "octo",
		Name:      fmt.Sprintf("repo-%d", id),
		FullName:  fmt.Sprintf("octo/repo-%d", id),
		StarCount: stars,
	}
}

func TestReconcileInsertsNewEntities(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)

	entities := []model.FetchedEntity{
		repoEntity(1, 100), repoEntity(2, 200), repoEntity(3, 300),
	}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 3}, stats)
	assert.Len(t, store.rows[model.KindRepository], 3)
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)

	entities := []model.FetchedEntity{repoEntity(1, 100), repoEntity(2, 200)}

	first, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 2}, first)

	// Chạy lại cùng batch: mọi thứ phải unchanged, không ghi gì thêm
	second, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Unchanged: 2}, second)
	assert.Empty(t, store.updates)
}

func TestReconcileUpdatesChangedFields(t *testing.T) {
	store := newFakeStore()
	store.put(model.KindRepository, repoEntity(1, 100))
	reconciler := newTestReconciler(t, store)

	stats, err := reconciler.Reconcile(context.Background(), []model.FetchedEntity{repoEntity(1, 150)})
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 1}, stats)

	require.Len(t, store.updates, 1)
	assert.EqualValues(t, 1, store.updates[0].ID)
	assert.Equal(t, map[string]interface{}{"star_count": 150}, store.updates[0].Fields)
}

func TestReconcilePartialFailureIsolation(t *testing.T) {
	store := newFakeStore()
	store.failIDs[5] = true
	reconciler := newTestReconciler(t, store)

	var entities []model.FetchedEntity
	for i := int64(1); i <= 10; i++ {
		entities = append(entities, repoEntity(i, int(i)*10))
	}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 9, Failed: 1}, stats)
	// Bulk fail một lần rồi rơi về từng dòng
	assert.Equal(t, 1, store.bulkInserts)
	assert.Equal(t, 10, store.oneInserts)
	assert.Len(t, store.rows[model.KindRepository], 9)
}

func TestReconcileSkipsInvalidEntities(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)

	entities := []model.FetchedEntity{
		repoEntity(1, 100),
		&model.RepoEntity{ID: 0, Name: "no-id", User: "octo"},
		&model.RepoEntity{ID: 7, User: "octo"}, // thiếu name
	}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 1, Failed: 2}, stats)
}

func TestReconcileDedupsWithinBatch(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)

	entities := []model.FetchedEntity{repoEntity(1, 100), repoEntity(1, 120)}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 1}, stats)

	saved := store.rows[model.KindRepository][1].(*model.RepoEntity)
	// Bản xuất hiện sau trong batch thắng
	assert.Equal(t, 120, saved.StarCount)
}

func TestReconcileMixedKinds(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)

	entities := []model.FetchedEntity{
		repoEntity(1, 100),
		&model.ContributorEntity{ID: 1, Login: "dev-a", Contributions: 5},
		&model.OrgEntity{ID: 1, Login: "octo-org"},
	}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 3}, stats)
	assert.Len(t, store.rows[model.KindRepository], 1)
	assert.Len(t, store.rows[model.KindContributor], 1)
	assert.Len(t, store.rows[model.KindOrganization], 1)
}

func TestReconcileBatchSizeChunking(t *testing.T) {
	store := newFakeStore()
	reconciler := newTestReconciler(t, store)
	reconciler.batchSize = 4

	var entities []model.FetchedEntity
	for i := int64(1); i <= 10; i++ {
		entities = append(entities, repoEntity(i, 10))
	}

	stats, err := reconciler.Reconcile(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 10}, stats)
	// 10 thực thể chia lô 4 -> 3 lần bulk insert
	assert.Equal(t, 3, store.bulkInserts)
}
