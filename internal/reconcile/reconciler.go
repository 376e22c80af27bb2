// Gói reconcile so sánh các thực thể vừa fetch với bản đã lưu và áp
// thay đổi theo lô: thực thể mới được insert, thực thể đã có chỉ update
// khi các trường so sánh thật sự thay đổi. Một dòng lỗi không làm hỏng
// cả batch.

package reconcile

import (
	"context"
	"errors"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/log"
)

// Update là thay đổi cột chờ áp cho một bản ghi đã tồn tại
type Update struct {
	ID     int64
	Fields map[string]interface{}
}

// Store là tầng lưu trữ mà reconciler ghi vào
type Store interface {
	GetExisting(kind model.Kind, ids []int64) (map[int64]model.FetchedEntity, error)
	BulkInsert(kind model.Kind, entities []model.FetchedEntity) error
	InsertOne(entity model.FetchedEntity) error
	BulkUpdate(kind model.Kind, updates []Update) error
	UpdateOne(kind model.Kind, update Update) error
}

// Stats đếm kết quả của một lần reconcile
type Stats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (s *Stats) add(other Stats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Failed += other.Failed
}

type Reconciler struct {
	Logger    log.Logger
	Config    *cfg.Config
	Store     Store
	batchSize int
}

func NewReconciler(logger log.Logger, config *cfg.Config, store Store) (*Reconciler, error) {
	batchSize := config.Harvester.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	return &Reconciler{
		Logger:    logger,
		Config:    config,
		Store:     store,
		batchSize: batchSize,
	}, nil
}

// Reconcile xử lý một batch thực thể hỗn hợp: validate, dedup theo
// external id trong batch (bản xuất hiện sau thắng), rồi áp theo từng
// loại thực thể theo lô giới hạn batch size.
func (r *Reconciler) Reconcile(ctx context.Context, entities []model.FetchedEntity) (Stats, error) {
	stats := Stats{}
	if len(entities) == 0 {
		return stats, nil
	}

	byKind := make(map[model.Kind][]model.FetchedEntity)
	seen := make(map[model.Kind]map[int64]int)

	for _, entity := range entities {
		if err := entity.Validate(); err != nil {
			var vErr *model.ValidationError
			if errors.As(err, &vErr) {
				r.Logger.Warn(ctx, "Skipping invalid entity: %v", vErr)
			} else {
				r.Logger.Warn(ctx, "Skipping entity failing validation: %v", err)
			}
			stats.Failed++
			continue
		}

		kind := entity.EntityKind()
		if seen[kind] == nil {
			seen[kind] = make(map[int64]int)
		}

		// Dedup trong batch: giữ bản xuất hiện sau vì nó mới hơn
		if idx, ok := seen[kind][entity.ExternalID()]; ok {
			byKind[kind][idx] = entity
			continue
		}
		seen[kind][entity.ExternalID()] = len(byKind[kind])
		byKind[kind] = append(byKind[kind], entity)
	}

	for kind, kindEntities := range byKind {
		for start := 0; start < len(kindEntities); start += r.batchSize {
			end := start + r.batchSize
			if end > len(kindEntities) {
				end = len(kindEntities)
			}

			chunkStats, err := r.reconcileChunk(ctx, kind, kindEntities[start:end])
			stats.add(chunkStats)
			if err != nil {
				return stats, err
			}
		}
	}

	r.Logger.Info(ctx, "Reconciled batch: %d inserted, %d updated, %d unchanged, %d failed",
		stats.Inserted, stats.Updated, stats.Unchanged, stats.Failed)
	return stats, nil
}

func (r *Reconciler) reconcileChunk(ctx context.Context, kind model.Kind, entities []model.FetchedEntity) (Stats, error) {
	stats := Stats{}

	ids := make([]int64, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ExternalID())
	}

	existing, err := r.Store.GetExisting(kind, ids)
	if err != nil {
		// Không đọc được bản đã lưu thì không quyết định insert/update được
		return stats, err
	}

	var inserts []model.FetchedEntity
	var updates []Update
	for _, entity := range entities {
		old, ok := existing[entity.ExternalID()]
		if !ok {
			inserts = append(inserts, entity)
			continue
		}

		changed := entity.Diff(old)
		if len(changed) == 0 {
			stats.Unchanged++
			continue
		}
		updates = append(updates, Update{ID: entity.ExternalID(), Fields: changed})
	}

	stats.add(r.applyInserts(ctx, kind, inserts))
	stats.add(r.applyUpdates(ctx, kind, updates))
	return stats, nil
}

// applyInserts thử bulk insert trước, lỗi thì rơi về từng dòng để cô lập
// dòng hỏng khỏi phần còn lại của lô
func (r *Reconciler) applyInserts(ctx context.Context, kind model.Kind, inserts []model.FetchedEntity) Stats {
	stats := Stats{}
	if len(inserts) == 0 {
		return stats
	}

	if err := r.Store.BulkInsert(kind, inserts); err == nil {
		stats.Inserted = len(inserts)
		return stats
	} else {
		r.Logger.Warn(ctx, "Bulk insert of %d %s entities failed, falling back to per-entity insert: %v", len(inserts), kind, err)
	}

	for _, entity := range inserts {
		if err := r.Store.InsertOne(entity); err != nil {
			r.Logger.Error(ctx, "Failed to insert %s entity %d: %v", kind, entity.ExternalID(), err)
			stats.Failed++
			continue
		}
		stats.Inserted++
	}
	return stats
}

func (r *Reconciler) applyUpdates(ctx context.Context, kind model.Kind, updates []Update) Stats {
	stats := Stats{}
	if len(updates) == 0 {
		return stats
	}

	if err := r.Store.BulkUpdate(kind, updates); err == nil {
		stats.Updated = len(updates)
		return stats
	} else {
		r.Logger.Warn(ctx, "Bulk update of %d %s entities failed, falling back to per-entity update: %v", len(updates), kind, err)
	}

	for _, update := range updates {
		if err := r.Store.UpdateOne(kind, update); err != nil {
			r.Logger.Error(ctx, "Failed to update %s entity %d: %v", kind, update.ID, err)
			stats.Failed++
			continue
		}
		stats.Updated++
	}
	return stats
}
