package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
)

const dashboardPostLimit = 500

// topicStat aggregates stored posts per matched topic
type topicStat struct {
	Topic      string
	Posts      int
	Engagement int
}

func topicStats(posts []*models.ScrapedPost) []topicStat {
	byTopic := make(map[string]*topicStat)
	for _, p := range posts {
		for _, t := range p.MatchedTopics {
			st, ok := byTopic[t]
			if !ok {
				st = &topicStat{Topic: t}
				byTopic[t] = st
			}
			st.Posts++
			st.Engagement += p.Reactions + p.Comments + p.Shares
		}
	}

	stats := make([]topicStat, 0, len(byTopic))
	for _, st := range byTopic {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Engagement != stats[j].Engagement {
			return stats[i].Engagement > stats[j].Engagement
		}
		return stats[i].Topic < stats[j].Topic
	})
	return stats
}

// dashboard renders topic share and engagement charts of stored posts
func (s *Server) dashboard(c *gin.Context) {
	if s.deps.Repository == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Dashboard not configured"})
		return
	}

	posts, err := s.deps.Repository.ListPosts(c.Request.Context(), storage.PostFilter{
		ByEngagement: true,
		Limit:        dashboardPostLimit,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load posts for dashboard")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to load posts"})
		return
	}
	stats := topicStats(posts)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Posts by Topic"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	pieItems := make([]opts.PieData, 0, len(stats))
	for _, st := range stats {
		pieItems = append(pieItems, opts.PieData{Name: st.Topic, Value: st.Posts})
	}
	pie.AddSeries("Posts", pieItems)

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Engagement by Topic"}))
	names := make([]string, 0, len(stats))
	barItems := make([]opts.BarData, 0, len(stats))
	for _, st := range stats {
		names = append(names, st.Topic)
		barItems = append(barItems, opts.BarData{Value: st.Engagement})
	}
	bar.SetXAxis(names).AddSeries("Engagement", barItems)

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := pie.Render(c.Writer); err != nil {
		s.log.Error().Err(err).Msg("Failed to render chart")
		return
	}
	if err := bar.Render(c.Writer); err != nil {
		s.log.Error().Err(err).Msg("Failed to render chart")
	}
}
