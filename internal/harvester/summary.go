package harvester

import (
	"context"
	"time"

	"github.com/thep200/github-harvester/internal/reconcile"
	"github.com/thep200/github-harvester/pkg/log"
)

// Summary là kết quả của một lần chạy harvest
type Summary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Elapsed    string          `json:"elapsed"`
	Windows    int             `json:"windows"`
	Fetched    int             `json:"fetched"`
	Enriched   int             `json:"enriched"`
	Published  int             `json:"published"`
	Events     int             `json:"events"`
	Stats      reconcile.Stats `json:"stats"`
	Fatal      string          `json:"fatal,omitempty"`
}

func newSummary() *Summary {
	return &Summary{StartedAt: time.Now()}
}

func (s *Summary) finish() {
	s.FinishedAt = time.Now()
	s.Elapsed = s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
}

func (s *Summary) logResults(ctx context.Context, logger log.Logger) {
	logger.Info(ctx, "==== KẾT QUẢ HARVEST ====")
	logger.Info(ctx, "Thời gian bắt đầu: %s", s.StartedAt.Format(time.RFC3339))
	logger.Info(ctx, "Thời gian kết thúc: %s", s.FinishedAt.Format(time.RFC3339))
	logger.Info(ctx, "Tổng thời gian thực hiện: %s", s.Elapsed)
	logger.Info(ctx, "Số window đã xử lý: %d", s.Windows)
	logger.Info(ctx, "Số repositories đã fetch: %d", s.Fetched)
	logger.Info(ctx, "Số thực thể enrich được: %d", s.Enriched)
	if s.Published > 0 {
		logger.Info(ctx, "Số thực thể đã gửi vào Kafka: %d", s.Published)
	} else {
		logger.Info(ctx, "Kết quả reconcile: %d inserted, %d updated, %d unchanged, %d failed",
			s.Stats.Inserted, s.Stats.Updated, s.Stats.Unchanged, s.Stats.Failed)
	}
	if s.Events > 0 {
		logger.Info(ctx, "Số event đồng bộ từ analytics: %d", s.Events)
	}
	if s.Fatal != "" {
		logger.Error(ctx, "Harvest dừng vì lỗi fatal: %s", s.Fatal)
	}
}
