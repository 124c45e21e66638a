package storage

import (
	"context"
	"errors"

	"github.com/linkedin-pipeline/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Scrape run operations
	CreateRun(ctx context.Context, run *models.ScrapeRun) error
	UpdateRun(ctx context.Context, run *models.ScrapeRun) error
	GetRun(ctx context.Context, id string) (*models.ScrapeRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error)

	// Scraped post operations
	SavePosts(ctx context.Context, posts []models.ScrapedPost) (int64, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]*models.ScrapedPost, error)

	// Draft operations
	CreateDraft(ctx context.Context, draft *models.Draft) error
	GetDraft(ctx context.Context, id uint) (*models.Draft, error)
	FindDraftByTitle(ctx context.Context, title string) (*models.Draft, error)
	ListDrafts(ctx context.Context, filter DraftFilter) ([]*models.Draft, error)
	UpdateDraft(ctx context.Context, draft *models.Draft) error

	// Topic list operations
	GetTopicList(ctx context.Context) (*models.TopicList, error)
	SaveTopicList(ctx context.Context, list *models.TopicList) error

	// OAuth token operations
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	DeleteToken(ctx context.Context, provider string) error

	// Maintenance
	Close() error
	Migrate() error
}

// PostFilter defines filtering options for scraped posts
type PostFilter struct {
	RunID        string
	Topic        string
	ByEngagement bool // order by reactions+comments+shares instead of scrape time
	Limit        int
	Offset       int
}

// DraftFilter defines filtering options for drafts
type DraftFilter struct {
	Status    *models.DraftStatus
	RunID     string
	Limit     int
	Offset    int
	OrderDesc bool
}

// DefaultPostFilter returns a filter with sensible defaults
func DefaultPostFilter() PostFilter {
	return PostFilter{Limit: 50}
}

// DefaultDraftFilter returns a filter with sensible defaults
func DefaultDraftFilter() DraftFilter {
	return DraftFilter{
		Limit:     50,
		OrderDesc: true,
	}
}
