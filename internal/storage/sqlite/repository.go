package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	inMemory := strings.Contains(dsn, ":memory:")

	if !inMemory {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// each connection to :memory: is its own database
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.ScrapeRun{},
		&models.ScrapedPost{},
		&models.Draft{},
		&models.TopicList{},
		&models.OAuthToken{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Scrape run operations

func (r *Repository) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *Repository) GetRun(ctx context.Context, id string) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	var runs []*models.ScrapeRun
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Scraped post operations

// SavePosts inserts posts, refreshing the engagement counts of posts
// already stored under the same dedup key
func (r *Repository) SavePosts(ctx context.Context, posts []models.ScrapedPost) (int64, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"reactions", "comments", "shares", "run_id", "scraped_at"}),
	}).Create(&posts)
	return result.RowsAffected, result.Error
}

func (r *Repository) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*models.ScrapedPost, error) {
	var posts []*models.ScrapedPost
	query := r.db.WithContext(ctx).Model(&models.ScrapedPost{})

	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.Topic != "" {
		query = query.Where("matched_topics LIKE ?", "%\""+filter.Topic+"\"%")
	}

	if filter.ByEngagement {
		query = query.Order("(reactions + comments + shares) DESC")
	} else {
		query = query.Order("scraped_at DESC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Draft operations

func (r *Repository) CreateDraft(ctx context.Context, draft *models.Draft) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

func (r *Repository) GetDraft(ctx context.Context, id uint) (*models.Draft, error) {
	var draft models.Draft
	if err := r.db.WithContext(ctx).First(&draft, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &draft, nil
}

// FindDraftByTitle returns the newest draft with the given title
func (r *Repository) FindDraftByTitle(ctx context.Context, title string) (*models.Draft, error) {
	var draft models.Draft
	if err := r.db.WithContext(ctx).
		Where("title = ?", title).
		Order("created_at DESC, id DESC").
		First(&draft).Error; err != nil {
		return nil, notFound(err)
	}
	return &draft, nil
}

func (r *Repository) ListDrafts(ctx context.Context, filter storage.DraftFilter) ([]*models.Draft, error) {
	var drafts []*models.Draft
	query := r.db.WithContext(ctx).Model(&models.Draft{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}

	if filter.OrderDesc {
		query = query.Order("created_at DESC, id DESC")
	} else {
		query = query.Order("created_at ASC, id ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&drafts).Error; err != nil {
		return nil, err
	}
	return drafts, nil
}

func (r *Repository) UpdateDraft(ctx context.Context, draft *models.Draft) error {
	return r.db.WithContext(ctx).Save(draft).Error
}

// Topic list operations

func (r *Repository) GetTopicList(ctx context.Context) (*models.TopicList, error) {
	var list models.TopicList
	if err := r.db.WithContext(ctx).Order("id ASC").First(&list).Error; err != nil {
		return nil, notFound(err)
	}
	return &list, nil
}

// SaveTopicList replaces the single stored topic list
func (r *Repository) SaveTopicList(ctx context.Context, list *models.TopicList) error {
	var existing models.TopicList
	if err := r.db.WithContext(ctx).Order("id ASC").First(&existing).Error; err == nil {
		list.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(list).Error
}

// OAuth token operations

func (r *Repository) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	// Upsert - update if exists, create if not
	var existing models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", token.Provider).First(&existing).Error; err == nil {
		token.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *Repository) GetToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	var token models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (r *Repository) DeleteToken(ctx context.Context, provider string) error {
	return r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&models.OAuthToken{}).Error
}
