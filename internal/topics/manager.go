package topics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/pkg/logger"
)

// DefaultTopics seeds the stored list the first time it is read
var DefaultTopics = []string{
	"LLM (Large Language Models)",
	"Generative AI applications in healthcare",
	"Retrieval-Augmented Generation (RAG) techniques",
}

// History summarizes the stored topic list
type History struct {
	LastUpdated time.Time `json:"last_updated"`
	TotalTopics int       `json:"total_topics"`
}

// Manager maintains the persisted list of topics chosen by the user
type Manager struct {
	repo     storage.Repository
	defaults []string
	log      *logger.Logger
}

// NewManager creates a topic manager; empty defaults fall back to DefaultTopics
func NewManager(repo storage.Repository, defaults []string, log *logger.Logger) *Manager {
	if len(defaults) == 0 {
		defaults = DefaultTopics
	}
	return &Manager{
		repo:     repo,
		defaults: defaults,
		log:      log.WithComponent("topics"),
	}
}

// Current returns the stored topics, seeding the defaults when none exist
func (m *Manager) Current(ctx context.Context) ([]string, error) {
	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), list.Topics...), nil
}

// Add appends comma separated topics, skipping blanks and duplicates.
// It returns the topics that were actually added.
func (m *Manager) Add(ctx context.Context, csv string) ([]string, error) {
	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(list.Topics))
	for _, t := range list.Topics {
		seen[strings.ToLower(t)] = true
	}

	var added []string
	for _, t := range ParseList(csv) {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		list.Topics = append(list.Topics, t)
		added = append(added, t)
	}

	if len(added) == 0 {
		return nil, nil
	}
	if err := m.repo.SaveTopicList(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to save topics: %w", err)
	}
	m.log.Info().Strs("added", added).Int("total", len(list.Topics)).Msg("Topics added")
	return added, nil
}

// Reset restores the default topics
func (m *Manager) Reset(ctx context.Context) ([]string, error) {
	list := &models.TopicList{Topics: models.StringSlice(append([]string(nil), m.defaults...))}
	if err := m.repo.SaveTopicList(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to reset topics: %w", err)
	}
	m.log.Info().Int("total", len(list.Topics)).Msg("Topics reset to defaults")
	return append([]string(nil), list.Topics...), nil
}

// History returns when the list last changed and its size
func (m *Manager) History(ctx context.Context) (*History, error) {
	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return &History{LastUpdated: list.UpdatedAt, TotalTopics: len(list.Topics)}, nil
}

func (m *Manager) load(ctx context.Context) (*models.TopicList, error) {
	list, err := m.repo.GetTopicList(ctx)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}

	list = &models.TopicList{Topics: models.StringSlice(append([]string(nil), m.defaults...))}
	if err := m.repo.SaveTopicList(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to seed topics: %w", err)
	}
	return list, nil
}

// ParseList splits a comma separated topic string, trimming blanks and
// dropping duplicates while keeping first-seen order
func ParseList(csv string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(csv, ",") {
		t := strings.TrimSpace(part)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}
