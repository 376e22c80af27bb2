package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/harvester"
	"github.com/thep200/github-harvester/internal/tokenpool"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

type fakeSummarySource struct {
	summary *harvester.Summary
}

func (f *fakeSummarySource) LastSummary() *harvester.Summary { return f.summary }

type fakePoolStats struct{}

func (f *fakePoolStats) Stats() []tokenpool.CredentialStats {
	return []tokenpool.CredentialStats{
		{Index: 0, Token: "ghp_...1234", QuotaRemaining: 4200, Status: "ready"},
	}
}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
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

	handler, err := NewHandler(logger, config, db.NewMysqlWithDb(config, gdb))
	require.NoError(t, err)
	return handler, mock
}

func serveRequest(handler *Handler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func TestGetIndex(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := serveRequest(handler, "/")
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, "github-harvester", payload["name"])
	assert.NotEmpty(t, payload["endpoints"])
}

func TestGetRepos(t *testing.T) {
	handler, mock := newTestHandler(t)

	rows := sqlmock.NewRows([]string{"id", "user", "name", "full_name", "star_count"}).
		AddRow(1, "octo", "alpha", "octo/alpha", 500).
		AddRow(2, "octo", "beta", "octo/beta", 300)
	mock.ExpectQuery("SELECT (.+) FROM `repos`").WillReturnRows(rows)
	mock.ExpectQuery("SELECT count(.+) FROM `repos`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	recorder := serveRequest(handler, "/api/repos?page=1&pageSize=50")
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Repositories []Repository `json:"repositories"`
		Pagination   struct {
			TotalCount int `json:"totalCount"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Len(t, payload.Repositories, 2)
	assert.Equal(t, "alpha", payload.Repositories[0].Name)
	assert.Equal(t, 2, payload.Pagination.TotalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatsWithHarvesterAttached(t *testing.T) {
	handler, mock := newTestHandler(t)

	for _, table := range []string{"repos", "contributors", "orgs", "events"} {
		mock.ExpectQuery("SELECT count(.+) FROM `" + table + "`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	}

	summary := &harvester.Summary{Fetched: 42}
	handler.AttachHarvester(&fakeSummarySource{summary: summary}, &fakePoolStats{})

	recorder := serveRequest(handler, "/api/stats")
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Contains(t, payload, "database")
	assert.Contains(t, payload, "credentials")
	assert.Contains(t, payload, "last_run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
