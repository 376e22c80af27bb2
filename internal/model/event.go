package model

import (
	"fmt"
	"time"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event là bản ghi event từ analytics engine. Dữ liệu event chỉ thêm,
// không bao giờ update hay delete.
type Event struct {
	Model
	ID             int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Type           string    `json:"type" gorm:"column:type;type:varchar(64);not null;index"`
	RepoID         int64     `json:"repo_id" gorm:"column:repo_id;index"`
	RepoName       string    `json:"repo_name" gorm:"column:repo_name;type:varchar(512)"`
	ActorID        int64     `json:"actor_id" gorm:"column:actor_id"`
	ActorLogin     string    `json:"actor_login" gorm:"column:actor_login;type:varchar(255)"`
	EventCreatedAt time.Time `json:"event_created_at" gorm:"column:event_created_at;index"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewEvent(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Event, error) {
	return &Event{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}, nil
}

func (ev *Event) TableName() string {
	return "events"
}

func (ev *Event) FromEntity(e *EventEntity) *Event {
	return &Event{
		ID:             e.ID,
		Type:           TruncateString(e.Type, 60),
		RepoID:         e.RepoID,
		RepoName:       TruncateString(e.RepoName, 500),
		ActorID:        e.ActorID,
		ActorLogin:     TruncateString(e.ActorLogin, 250),
		EventCreatedAt: e.CreatedAt,
		CreatedAt:      time.Now(),
	}
}

func (ev *Event) ToEntity() *EventEntity {
	return &EventEntity{
		ID:         ev.ID,
		Type:       ev.Type,
		RepoID:     ev.RepoID,
		RepoName:   ev.RepoName,
		ActorID:    ev.ActorID,
		ActorLogin: ev.ActorLogin,
		CreatedAt:  ev.EventCreatedAt,
	}
}

func (ev *Event) GetByIDs(ids []int64) ([]Event, error) {
	db, err := ev.Mysql.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	var events []Event
	if err := db.Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch events by ids: %w", err)
	}
	return events, nil
}

func (ev *Event) CreateBatch(entities []*EventEntity) error {
	db, err := ev.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	events := make([]Event, 0, len(entities))
	for _, e := range entities {
		events = append(events, *ev.FromEntity(e))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		// Event trùng id thì bỏ qua, không có gì để update
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).CreateInBatches(events, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create events: %w", result.Error)
		}
		return nil
	})
}
