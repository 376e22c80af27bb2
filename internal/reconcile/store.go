package reconcile

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/pkg/db"
	"github.com/thep200/github-harvester/pkg/log"
)

// GormStore là Store chạy trên MySQL qua các model gorm
type GormStore struct {
	Logger log.Logger
	Config *cfg.Config
	Mysql  *db.Mysql

	repo        *model.Repo
	contributor *model.Contributor
	org         *model.Org
	event       *model.Event
}

func NewGormStore(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*GormStore, error) {
	repo, err := model.NewRepo(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	contributor, err := model.NewContributor(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	org, err := model.NewOrg(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	event, err := model.NewEvent(config, logger, mysql)
	if err != nil {
		return nil, err
	}

	return &GormStore{
		Logger:      logger,
		Config:      config,
		Mysql:       mysql,
		repo:        repo,
		contributor: contributor,
		org:         org,
		event:       event,
	}, nil
}

func (s *GormStore) GetExisting(kind model.Kind, ids []int64) (map[int64]model.FetchedEntity, error) {
	existing := make(map[int64]model.FetchedEntity, len(ids))

	switch kind {
	case model.KindRepository:
		repos, err := s.repo.GetByIDs(ids)
		if err != nil {
			return nil, err
		}
		for i := range repos {
			existing[repos[i].ID] = repos[i].ToEntity()
		}
	case model.KindContributor:
		contributors, err := s.contributor.GetByIDs(ids)
		if err != nil {
			return nil, err
		}
		for i := range contributors {
			existing[contributors[i].ID] = contributors[i].ToEntity()
		}
	case model.KindOrganization:
		orgs, err := s.org.GetByIDs(ids)
		if err != nil {
			return nil, err
		}
		for i := range orgs {
			existing[orgs[i].ID] = orgs[i].ToEntity()
		}
	case model.KindEvent:
		events, err := s.event.GetByIDs(ids)
		if err != nil {
			return nil, err
		}
		for i := range events {
			existing[events[i].ID] = events[i].ToEntity()
		}
	default:
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}

	return existing, nil
}

func (s *GormStore) BulkInsert(kind model.Kind, entities []model.FetchedEntity) error {
	switch kind {
	case model.KindRepository:
		repos := make([]*model.RepoEntity, 0, len(entities))
		for _, e := range entities {
			repo, ok := e.(*model.RepoEntity)
			if !ok {
				return fmt.Errorf("entity %d is not a repository", e.ExternalID())
			}
			repos = append(repos, repo)
		}
		return s.repo.CreateBatch(repos)
	case model.KindContributor:
		contributors := make([]*model.ContributorEntity, 0, len(entities))
		for _, e := range entities {
			contributor, ok := e.(*model.ContributorEntity)
			if !ok {
				return fmt.Errorf("entity %d is not a contributor", e.ExternalID())
			}
			contributors = append(contributors, contributor)
		}
		return s.contributor.CreateBatch(contributors)
	case model.KindOrganization:
		orgs := make([]*model.OrgEntity, 0, len(entities))
		for _, e := range entities {
			org, ok := e.(*model.OrgEntity)
			if !ok {
				return fmt.Errorf("entity %d is not an organization", e.ExternalID())
			}
			orgs = append(orgs, org)
		}
		return s.org.CreateBatch(orgs)
	case model.KindEvent:
		events := make([]*model.EventEntity, 0, len(entities))
		for _, e := range entities {
			event, ok := e.(*model.EventEntity)
			if !ok {
				return fmt.Errorf("entity %d is not an event", e.ExternalID())
			}
			events = append(events, event)
		}
		return s.event.CreateBatch(events)
	default:
		return fmt.Errorf("unknown entity kind: %s", kind)
	}
}

func (s *GormStore) InsertOne(entity model.FetchedEntity) error {
	return s.BulkInsert(entity.EntityKind(), []model.FetchedEntity{entity})
}

// BulkUpdate áp các thay đổi cột trong một transaction
func (s *GormStore) BulkUpdate(kind model.Kind, updates []Update) error {
	gdb, err := s.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			if err := applyUpdate(tx, table, update); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) UpdateOne(kind model.Kind, update Update) error {
	gdb, err := s.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	return applyUpdate(gdb, table, update)
}

func applyUpdate(tx *gorm.DB, table string, update Update) error {
	fields := make(map[string]interface{}, len(update.Fields)+1)
	for column, value := range update.Fields {
		fields[column] = value
	}
	fields["updated_at"] = time.Now()

	if err := tx.Table(table).Where("id = ?", update.ID).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", table, update.ID, err)
	}
	return nil
}

func tableFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindRepository:
		return "repos", nil
	case model.KindContributor:
		return "contributors", nil
	case model.KindOrganization:
		return "orgs", nil
	case model.KindEvent:
		return "events", nil
	default:
		return "", fmt.Errorf("unknown entity kind: %s", kind)
	}
}
