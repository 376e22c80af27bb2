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

type Contributor struct {
	Model
	ID            int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Login         string    `json:"login" gorm:"column:login;type:varchar(255);not null;index"`
	Type          string    `json:"type" gorm:"column:type;type:varchar(32)"`
	Name          string    `json:"name" gorm:"column:name;type:varchar(255)"`
	Company       string    `json:"company" gorm:"column:company;type:varchar(255)"`
	Location      string    `json:"location" gorm:"column:location;type:varchar(255)"`
	Email         string    `json:"email" gorm:"column:email;type:varchar(255)"`
	Contributions int       `json:"contributions" gorm:"column:contributions;default:0"`
	PublicRepos   int       `json:"public_repos" gorm:"column:public_repos;default:0"`
	Followers     int       `json:"followers" gorm:"column:followers;default:0"`
	Following     int       `json:"following" gorm:"column:following;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewContributor(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Contributor, error) {
	return &Contributor{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}, nil
}

func (c *Contributor) TableName() string {
	return "contributors"
}

func (c *Contributor) FromEntity(e *ContributorEntity) *Contributor {
	now := time.Now()
	return &Contributor{
		ID:            e.ID,
		Login:         TruncateString(e.Login, 250),
		Type:          TruncateString(e.Type, 30),
		Name:          TruncateString(e.Name, 250),
		Company:       TruncateString(e.Company, 250),
		Location:      TruncateString(e.Location, 250),
		Email:         TruncateString(e.Email, 250),
		Contributions: e.Contributions,
		PublicRepos:   e.PublicRepos,
		Followers:     e.Followers,
		Following:     e.Following,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Contributor) ToEntity() *ContributorEntity {
	return &ContributorEntity{
		ID:            c.ID,
		Login:         c.Login,
		Type:          c.Type,
		Name:          c.Name,
		Company:       c.Company,
		Location:      c.Location,
		Email:         c.Email,
		Contributions: c.Contributions,
		PublicRepos:   c.PublicRepos,
		Followers:     c.Followers,
		Following:     c.Following,
	}
}

func (c *Contributor) GetByIDs(ids []int64) ([]Contributor, error) {
	db, err := c.Mysql.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	var contributors []Contributor
	if err := db.Where("id IN ?", ids).Find(&contributors).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch contributors by ids: %w", err)
	}
	return contributors, nil
}

func (c *Contributor) CreateBatch(entities []*ContributorEntity) error {
	db, err := c.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	contributors := make([]Contributor, 0, len(entities))
	for _, e := range entities {
		contributors = append(contributors, *c.FromEntity(e))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"contributions", "public_repos", "followers", "following", "updated_at",
			}),
		}).CreateInBatches(contributors, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create contributors: %w", result.Error)
		}
		return nil
	})
}
