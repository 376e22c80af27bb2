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

type Org struct {
	Model
	ID          int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Login       string    `json:"login" gorm:"column:login;type:varchar(255);not null;index"`
	Name        string    `json:"name" gorm:"column:name;type:varchar(255)"`
	Description string    `json:"description" gorm:"column:description;type:text"`
	Location    string    `json:"location" gorm:"column:location;type:varchar(255)"`
	Email       string    `json:"email" gorm:"column:email;type:varchar(255)"`
	IsVerified  bool      `json:"is_verified" gorm:"column:is_verified;default:false"`
	PublicRepos int       `json:"public_repos" gorm:"column:public_repos;default:0"`
	Followers   int       `json:"followers" gorm:"column:followers;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewOrg(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Org, error) {
	return &Org{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}, nil
}

func (o *Org) TableName() string {
	return "orgs"
}

func (o *Org) FromEntity(e *OrgEntity) *Org {
	now := time.Now()
	return &Org{
		ID:          e.ID,
		Login:       TruncateString(e.Login, 250),
		Name:        TruncateString(e.Name, 250),
		Description: e.Description,
		Location:    TruncateString(e.Location, 250),
		Email:       TruncateString(e.Email, 250),
		IsVerified:  e.IsVerified,
		PublicRepos: e.PublicRepos,
		Followers:   e.Followers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (o *Org) ToEntity() *OrgEntity {
	return &OrgEntity{
		ID:          o.ID,
		Login:       o.Login,
		Name:        o.Name,
		Description: o.Description,
		Location:    o.Location,
		Email:       o.Email,
		IsVerified:  o.IsVerified,
		PublicRepos: o.PublicRepos,
		Followers:   o.Followers,
	}
}

func (o *Org) GetByIDs(ids []int64) ([]Org, error) {
	db, err := o.Mysql.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	var orgs []Org
	if err := db.Where("id IN ?", ids).Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch orgs by ids: %w", err)
	}
	return orgs, nil
}

func (o *Org) CreateBatch(entities []*OrgEntity) error {
	db, err := o.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	orgs := make([]Org, 0, len(entities))
	for _, e := range entities {
		orgs = append(orgs, *o.FromEntity(e))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "public_repos", "followers", "is_verified", "updated_at",
			}),
		}).CreateInBatches(orgs, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create orgs: %w", result.Error)
		}
		return nil
	})
}
