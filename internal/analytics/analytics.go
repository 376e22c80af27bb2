// Gói analytics cung cấp engine truy vấn khối lượng lớn cho event đã
// harvest. Event được ghi vào các bảng partition theo ngày dạng
// events_YYYYMMDD, mỗi truy vấn chỉ quét đúng các partition trong
// khoảng thời gian yêu cầu.

package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/log"
)

// Ước lượng kích thước một dòng event để so với ngân sách quét
const approxEventRowBytes = 120

// ErrScanBudget trả về khi truy vấn sẽ quét nhiều hơn ngân sách cho phép
var ErrScanBudget = errors.New("query would scan more bytes than the configured budget")

type Engine struct {
	Logger log.Logger
	Config *cfg.Config

	db              *sql.DB
	maxScanBytes    int64
	maxLookbackDays int
}

func NewEngine(logger log.Logger, config *cfg.Config) (*Engine, error) {
	path := config.Analytics.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping analytics store: %w", err)
	}

	maxLookback := config.Analytics.MaxLookbackDays
	if maxLookback <= 0 {
		maxLookback = 30
	}

	return &Engine{
		Logger:          logger,
		Config:          config,
		db:              db,
		maxScanBytes:    config.Analytics.MaxScanBytes,
		maxLookbackDays: maxLookback,
	}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// tableFor đặt tên partition theo ngày UTC của event
func tableFor(day time.Time) string {
	return "events_" + day.UTC().Format("20060102")
}

// EnsureDay tạo bảng partition cho một ngày nếu chưa tồn tại
func (e *Engine) EnsureDay(ctx context.Context, day time.Time) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT,
		type VARCHAR,
		repo_id BIGINT,
		repo_name VARCHAR,
		actor_id BIGINT,
		actor_login VARCHAR,
		created_at TIMESTAMP
	)`, tableFor(day))

	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", tableFor(day), err)
	}
	return nil
}

// IngestEvents ghi event vào partition theo ngày tạo của từng event.
// Toàn bộ batch nằm trong một transaction.
func (e *Engine) IngestEvents(ctx context.Context, events []*model.EventEntity) error {
	if len(events) == 0 {
		return nil
	}

	// Gom theo partition trước để mỗi ngày một prepared statement
	byDay := make(map[string][]*model.EventEntity)
	for _, ev := range events {
		day := ev.CreatedAt
		if day.IsZero() {
			day = time.Now()
		}
		if err := e.EnsureDay(ctx, day); err != nil {
			return err
		}
		byDay[tableFor(day)] = append(byDay[tableFor(day)], ev)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for table, dayEvents := range byDay {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (id, type, repo_id, repo_name, actor_id, actor_login, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)", table))
		if err != nil {
			return err
		}
		for _, ev := range dayEvents {
			if _, err := stmt.ExecContext(ctx, ev.ID, ev.Type, ev.RepoID, ev.RepoName, ev.ActorID, ev.ActorLogin, ev.CreatedAt); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("failed to insert event %d into %s: %w", ev.ID, table, err)
			}
		}
		_ = stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	e.Logger.Info(ctx, "Ingested %d events across %d partitions", len(events), len(byDay))
	return nil
}

// ClampLookback giới hạn khoảng thời gian truy vấn trong số ngày look-back
// tối đa. Trả về true khi khoảng bị thu hẹp.
func (e *Engine) ClampLookback(from, to time.Time) (time.Time, time.Time, bool) {
	if to.IsZero() {
		to = time.Now()
	}
	floor := to.AddDate(0, 0, -e.maxLookbackDays)
	if from.IsZero() || from.Before(floor) {
		return floor, to, true
	}
	return from, to, false
}

// EventsForRepos trả về event của các repo trong khoảng thời gian cho trước.
// Khoảng bị clamp theo look-back tối đa và truy vấn bị chặn khi ước lượng
// quét vượt ngân sách.
func (e *Engine) EventsForRepos(ctx context.Context, repoIDs []int64, from, to time.Time) ([]*model.EventEntity, error) {
	if len(repoIDs) == 0 {
		return nil, nil
	}

	from, to, clamped := e.ClampLookback(from, to)
	if clamped {
		e.Logger.Warn(ctx, "Query window clamped to the last %d days", e.maxLookbackDays)
	}

	tables, err := e.partitionsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}

	if err := e.checkScanBudget(ctx, tables); err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(repoIDs)), ",")
	var selects []string
	var args []interface{}
	for _, table := range tables {
		selects = append(selects, fmt.Sprintf(
			"SELECT id, type, repo_id, repo_name, actor_id, actor_login, created_at FROM %s WHERE repo_id IN (%s) AND created_at BETWEEN ? AND ?",
			table, placeholders))
		for _, id := range repoIDs {
			args = append(args, id)
		}
		args = append(args, from, to)
	}

	query := strings.Join(selects, " UNION ALL ") + " ORDER BY created_at"
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*model.EventEntity
	for rows.Next() {
		ev := &model.EventEntity{}
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.RepoID, &ev.RepoName, &ev.ActorID, &ev.ActorLogin, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// TopActiveRepos đếm event theo repo trong khoảng thời gian, trả về
// các repo hoạt động nhiều nhất
func (e *Engine) TopActiveRepos(ctx context.Context, from, to time.Time, limit int) (map[int64]int64, error) {
	from, to, clamped := e.ClampLookback(from, to)
	if clamped {
		e.Logger.Warn(ctx, "Query window clamped to the last %d days", e.maxLookbackDays)
	}
	if limit <= 0 {
		limit = 100
	}

	tables, err := e.partitionsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return map[int64]int64{}, nil
	}

	if err := e.checkScanBudget(ctx, tables); err != nil {
		return nil, err
	}

	var selects []string
	var args []interface{}
	for _, table := range tables {
		selects = append(selects, fmt.Sprintf("SELECT repo_id FROM %s WHERE created_at BETWEEN ? AND ?", table))
		args = append(args, from, to)
	}
	query := fmt.Sprintf("SELECT repo_id, COUNT(*) AS cnt FROM (%s) GROUP BY repo_id ORDER BY cnt DESC LIMIT %d",
		strings.Join(selects, " UNION ALL "), limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top repos: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var repoID, cnt int64
		if err := rows.Scan(&repoID, &cnt); err != nil {
			return nil, err
		}
		counts[repoID] = cnt
	}
	return counts, rows.Err()
}

// partitionsBetween liệt kê các bảng partition tồn tại trong khoảng ngày
func (e *Engine) partitionsBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	existing, err := e.existingPartitions(ctx)
	if err != nil {
		return nil, err
	}

	var tables []string
	day := from.UTC().Truncate(24 * time.Hour)
	last := to.UTC().Truncate(24 * time.Hour)
	for !day.After(last) {
		if name := tableFor(day); existing[name] {
			tables = append(tables, name)
		}
		day = day.AddDate(0, 0, 1)
	}
	return tables, nil
}

func (e *Engine) existingPartitions(ctx context.Context) (map[string]bool, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT table_name FROM duckdb_tables() WHERE table_name LIKE 'events_%'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// checkScanBudget ước lượng số byte sẽ quét từ số dòng của các partition
// và chặn truy vấn vượt ngân sách trước khi chạy
func (e *Engine) checkScanBudget(ctx context.Context, tables []string) error {
	if e.maxScanBytes <= 0 {
		return nil
	}

	var totalRows int64
	for _, table := range tables {
		var count int64
		if err := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return err
		}
		totalRows += count
	}

	estimate := totalRows * approxEventRowBytes
	if estimate > e.maxScanBytes {
		e.Logger.Warn(ctx, "Query rejected: estimated scan of %d bytes exceeds budget of %d bytes", estimate, e.maxScanBytes)
		return ErrScanBudget
	}
	return nil
}
