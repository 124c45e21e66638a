package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linkedin-pipeline/internal/hashnode"
	"github.com/linkedin-pipeline/internal/linkedin"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/pkg/logger"
)

// ErrNotPublishable is returned for drafts that were already published,
// rejected or failed too many times
var ErrNotPublishable = errors.New("draft cannot be published")

// Sharer posts text to LinkedIn
type Sharer interface {
	Share(ctx context.Context, req linkedin.ShareRequest) *linkedin.ShareResult
}

// Blogger publishes long-form articles
type Blogger interface {
	Publish(ctx context.Context, title, content string) *hashnode.BlogResult
}

// ArticleWriter expands a post into a blog article
type ArticleWriter interface {
	GenerateBlogArticle(ctx context.Context, title, content string, minWords, maxWords int) (string, error)
}

// StatusTracker mirrors draft status changes
type StatusTracker interface {
	UpdateDraftStatus(ctx context.Context, draft *models.Draft) error
}

// Options configure the publisher agent
type Options struct {
	Visibility string
	MinWords   int
	MaxWords   int
}

// Agent approves drafts and publishes them to LinkedIn and HashNode
type Agent struct {
	sharer     Sharer
	repository storage.Repository
	opts       Options
	log        *logger.Logger

	blogger Blogger       // optional
	writer  ArticleWriter // optional
	tracker StatusTracker // optional
	now     func() time.Time
}

// NewAgent creates a new publisher agent
func NewAgent(sharer Sharer, repository storage.Repository, opts Options, log *logger.Logger) *Agent {
	return &Agent{
		sharer:     sharer,
		repository: repository,
		opts:       opts,
		log:        log.WithComponent("publisher"),
		now:        time.Now,
	}
}

// WithBlog enables blog publishing
func (a *Agent) WithBlog(writer ArticleWriter, blogger Blogger) *Agent {
	a.writer = writer
	a.blogger = blogger
	return a
}

// WithTracker mirrors status changes to tracker
func (a *Agent) WithTracker(tracker StatusTracker) *Agent {
	a.tracker = tracker
	return a
}

// PublishResult contains the result of publishing a draft
type PublishResult struct {
	DraftID uint
	PostURN string
	Share   *linkedin.ShareResult
}

// Approve marks a pending draft as approved without publishing it
func (a *Agent) Approve(ctx context.Context, draftID uint) (*models.Draft, error) {
	draft, err := a.repository.GetDraft(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("draft not found: %w", err)
	}
	if draft.Status != models.DraftStatusPending {
		return nil, fmt.Errorf("can only approve pending drafts, draft %d is %s", draftID, draft.Status)
	}

	draft.Status = models.DraftStatusApproved
	if err := a.repository.UpdateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	a.track(ctx, draft)
	return draft, nil
}

// Publish shares a stored draft. Share failures are recorded on the draft
// and returned alongside the result.
func (a *Agent) Publish(ctx context.Context, draftID uint) (*PublishResult, error) {
	result := &PublishResult{DraftID: draftID}
	log := a.log.WithDraftID(draftID)

	draft, err := a.repository.GetDraft(ctx, draftID)
	if err != nil {
		return result, fmt.Errorf("draft not found: %w", err)
	}
	if !draft.CanPublish() {
		return result, fmt.Errorf("%w: status %s, %d retries", ErrNotPublishable, draft.Status, draft.RetryCount)
	}

	log.Info().Str("title", draft.Title).Msg("Publishing draft")

	share := a.sharer.Share(ctx, linkedin.ShareRequest{
		Title:      draft.Title,
		Content:    withHashtags(draft.Content, draft.Hashtags),
		Visibility: a.opts.Visibility,
	})
	result.Share = share

	if !share.Success {
		draft.Status = models.DraftStatusFailed
		draft.ErrorMessage = share.Error
		draft.RetryCount++
		if err := a.repository.UpdateDraft(ctx, draft); err != nil {
			log.Warn().Err(err).Msg("Failed to record publish failure")
		}
		a.track(ctx, draft)
		log.Error().Str("error", share.Error).Msg("Failed to publish draft")
		return result, fmt.Errorf("failed to share draft %d: %s", draftID, share.Error)
	}

	now := a.now()
	draft.Status = models.DraftStatusPublished
	draft.ShareURN = share.PostURN
	draft.ErrorMessage = ""
	draft.PublishedAt = &now
	if err := a.repository.UpdateDraft(ctx, draft); err != nil {
		log.Warn().Err(err).Msg("Failed to update published draft")
	}
	a.track(ctx, draft)

	result.PostURN = share.PostURN
	log.Info().Str("post_urn", share.PostURN).Msg("Draft published successfully")
	return result, nil
}

// ShareText shares title and content that are not backed by a stored
// draft. A stored draft with the same title is updated when one exists.
func (a *Agent) ShareText(ctx context.Context, title, content string) *linkedin.ShareResult {
	if draft, err := a.repository.FindDraftByTitle(ctx, title); err == nil && draft.CanPublish() {
		res, _ := a.Publish(ctx, draft.ID)
		if res.Share != nil {
			return res.Share
		}
	}
	return a.sharer.Share(ctx, linkedin.ShareRequest{Title: title, Content: content, Visibility: a.opts.Visibility})
}

// PublishBlog expands a draft into an article and publishes it on HashNode
func (a *Agent) PublishBlog(ctx context.Context, draftID uint) (*hashnode.BlogResult, error) {
	if a.blogger == nil || a.writer == nil {
		return nil, errors.New("blog publishing is not configured")
	}

	draft, err := a.repository.GetDraft(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("draft not found: %w", err)
	}

	article, err := a.writer.GenerateBlogArticle(ctx, draft.Title, draft.Content, a.opts.MinWords, a.opts.MaxWords)
	if err != nil {
		return nil, fmt.Errorf("failed to generate article: %w", err)
	}

	res := a.blogger.Publish(ctx, draft.Title, article)
	if res.Status != hashnode.StatusSuccess {
		return res, fmt.Errorf("failed to publish article: %s", res.Error)
	}

	draft.BlogURL = res.URL
	if err := a.repository.UpdateDraft(ctx, draft); err != nil {
		a.log.Warn().Err(err).Uint("draft_id", draftID).Msg("Failed to store blog URL")
	}
	return res, nil
}

func (a *Agent) track(ctx context.Context, draft *models.Draft) {
	if a.tracker == nil {
		return
	}
	if err := a.tracker.UpdateDraftStatus(ctx, draft); err != nil {
		a.log.Warn().Err(err).Uint("draft_id", draft.ID).Msg("Failed to update tracker")
	}
}

// withHashtags appends hashtags not already present in content
func withHashtags(content string, tags []string) string {
	var missing []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if !strings.Contains(content, tag) {
			missing = append(missing, tag)
		}
	}
	if len(missing) == 0 {
		return content
	}
	return strings.TrimRight(content, "\n") + "\n\n" + strings.Join(missing, " ")
}
