package reconcile

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mockLoader, _ := cfg.NewMockLoader()
	config, err := mockLoader.Load()
	require.NoError(t, err)

	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	store, err := NewGormStore(config, logger, db.NewMysqlWithDb(config, gdb))
	require.NoError(t, err)
	return store, mock
}

func TestGormStoreGetExistingRepos(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "user", "name", "full_name", "star_count"}).
		AddRow(1, "octo", "alpha", "octo/alpha", 100).
		AddRow(2, "octo", "beta", "octo/beta", 200)
	mock.ExpectQuery("SELECT (.+) FROM `repos` WHERE id IN").
		WithArgs(1, 2).
		WillReturnRows(rows)

	existing, err := store.GetExisting(model.KindRepository, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, existing, 2)

	repo := existing[1].(*model.RepoEntity)
	assert.Equal(t, "alpha", repo.Name)
	assert.Equal(t, 100, repo.StarCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreUpdateOne(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE `repos` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateOne(model.KindRepository, Update{
		ID:     1,
		Fields: map[string]interface{}{"star_count": 150},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreBulkUpdateRunsInTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `repos` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `repos` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.BulkUpdate(model.KindRepository, []Update{
		{ID: 1, Fields: map[string]interface{}{"star_count": 10}},
		{ID: 2, Fields: map[string]interface{}{"fork_count": 20}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreUnknownKind(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.GetExisting(model.Kind("branch"), []int64{1})
	assert.Error(t, err)

	err = store.UpdateOne(model.Kind("branch"), Update{ID: 1})
	assert.Error(t, err)
}
