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

type Repo struct {
	Model
	ID            int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	User          string    `json:"user" gorm:"column:user;type:varchar(255);not null"`
	Name          string    `json:"name" gorm:"column:name;type:varchar(255);not null"`
	FullName      string    `json:"full_name" gorm:"column:full_name;type:varchar(512)"`
	Description   string    `json:"description" gorm:"column:description;type:text"`
	Language      string    `json:"language" gorm:"column:language;type:varchar(64)"`
	StarCount     int       `json:"star_count" gorm:"column:star_count;default:0"`
	ForkCount     int       `json:"fork_count" gorm:"column:fork_count;default:0"`
	WatchCount    int       `json:"watch_count" gorm:"column:watch_count;default:0"`
	IssueCount    int       `json:"issue_count" gorm:"column:issue_count;default:0"`
	IsFork        bool      `json:"is_fork" gorm:"column:is_fork;default:false"`
	IsArchived    bool      `json:"is_archived" gorm:"column:is_archived;default:false"`
	OwnerID       int64     `json:"owner_id" gorm:"column:owner_id"`
	OwnerLogin    string    `json:"owner_login" gorm:"column:owner_login;type:varchar(255)"`
	OwnerType     string    `json:"owner_type" gorm:"column:owner_type;type:varchar(32)"`
	RepoCreatedAt time.Time `json:"repo_created_at" gorm:"column:repo_created_at"`
	PushedAt      time.Time `json:"pushed_at" gorm:"column:pushed_at"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewRepo(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Repo, error) {
	repo := &Repo{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}
	return repo, nil
}

func (r *Repo) TableName() string {
	return "repos"
}

// FromEntity chuyển một RepoEntity thành bản ghi chuẩn bị lưu
func (r *Repo) FromEntity(e *RepoEntity) *Repo {
	now := time.Now()
	return &Repo{
		ID:            e.ID,
		User:          TruncateString(e.User, 250),
		Name:          TruncateString(e.Name, 250),
		FullName:      TruncateString(e.FullName, 500),
		Description:   e.Description,
		Language:      TruncateString(e.Language, 60),
		StarCount:     e.StarCount,
		ForkCount:     e.ForkCount,
		WatchCount:    e.WatchCount,
		IssueCount:    e.IssueCount,
		IsFork:        e.IsFork,
		IsArchived:    e.IsArchived,
		OwnerID:       e.OwnerID,
		OwnerLogin:    TruncateString(e.OwnerLogin, 250),
		OwnerType:     TruncateString(e.OwnerType, 30),
		RepoCreatedAt: e.CreatedAt,
		PushedAt:      e.PushedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ToEntity chuyển bản ghi đã lưu về dạng entity để diff với dữ liệu mới
func (r *Repo) ToEntity() *RepoEntity {
	return &RepoEntity{
		ID:          r.ID,
		User:        r.User,
		Name:        r.Name,
		FullName:    r.FullName,
		Description: r.Description,
		Language:    r.Language,
		StarCount:   r.StarCount,
		ForkCount:   r.ForkCount,
		WatchCount:  r.WatchCount,
		IssueCount:  r.IssueCount,
		IsFork:      r.IsFork,
		IsArchived:  r.IsArchived,
		OwnerID:     r.OwnerID,
		OwnerLogin:  r.OwnerLogin,
		OwnerType:   r.OwnerType,
		CreatedAt:   r.RepoCreatedAt,
		PushedAt:    r.PushedAt,
	}
}

// GetByIDs lấy các bản ghi đã tồn tại theo external id trong một query
func (r *Repo) GetByIDs(ids []int64) ([]Repo, error) {
	db, err := r.Mysql.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	var repos []Repo
	if err := db.Where("id IN ?", ids).Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch repos by ids: %w", err)
	}
	return repos, nil
}

// CreateBatch upsert một lô repository trong một transaction
func (r *Repo) CreateBatch(entities []*RepoEntity) error {
	db, err := r.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	repos := make([]Repo, 0, len(entities))
	for _, e := range entities {
		repos = append(repos, *r.FromEntity(e))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"star_count", "fork_count", "watch_count", "issue_count",
				"description", "language", "is_archived", "updated_at",
			}),
		}).CreateInBatches(repos, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create repositories: %w", result.Error)
		}
		return nil
	})
}
