package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/pkg/logger"
	"github.com/linkedin-pipeline/pkg/ratelimit"
)

// Slack block layout shared with the interactive callback
const (
	ActionApprove    = "approve"
	ActionRegenerate = "regenerate"

	TitlePrefix    = "📝 "
	ContentLabel   = "*Content:*\n"
	DraftBlockPref = "draft:"

	maxHeaderLen = 150
	maxBlockLen  = 3000

	// longest numbered label, reserved in every part
	maxPartLabelLen = len("*Content (Part 999/999):*\n")
)

// Slack posts approval requests through an incoming webhook and replies
// to commands through the bot API
type Slack struct {
	webhookURL string
	api        *slack.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// NewSlack creates a Slack notifier. The bot client is only used when a
// bot token is configured.
func NewSlack(cfg config.SlackConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...slack.Option) *Slack {
	s := &Slack{
		webhookURL: cfg.WebhookURL,
		limiter:    limiter,
		log:        log.WithComponent("slack"),
	}
	if cfg.BotToken != "" {
		s.api = slack.New(cfg.BotToken, opts...)
	}
	return s
}

// Notify sends the draft with approve and regenerate buttons
func (s *Slack) Notify(ctx context.Context, msg Message) Result {
	if s.webhookURL == "" {
		return failed(errors.New("slack webhook URL not configured"))
	}
	if err := s.limiter.Wait(ctx, ratelimit.LimiterSlack); err != nil {
		return failed(err)
	}

	if err := slack.PostWebhookContext(ctx, s.webhookURL, BuildDraftMessage(msg)); err != nil {
		s.log.Error().Err(err).Str("title", msg.Title).Msg("Failed to send Slack notification")
		return failed(fmt.Errorf("failed to post webhook: %w", err))
	}

	s.log.Info().Str("title", msg.Title).Uint("draft_id", msg.DraftID).Msg("Slack notification sent")
	return Result{Sent: true}
}

// Reply posts a plain message to a channel as the bot
func (s *Slack) Reply(ctx context.Context, channel, text string) error {
	if s.api == nil {
		return errors.New("slack bot token not configured")
	}
	if err := s.limiter.Wait(ctx, ratelimit.LimiterSlack); err != nil {
		return err
	}
	if _, _, err := s.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

// BuildDraftMessage lays out a draft as header, content sections, divider
// and an actions block. Content longer than one section is split into
// numbered parts.
func BuildDraftMessage(msg Message) *slack.WebhookMessage {
	title := msg.Title
	if title == "" {
		title = "New LinkedIn Post"
	}
	content := paragraphs(msg.Content)
	if content == "" {
		content = "No content available"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, truncateRunes(TitlePrefix+title, maxHeaderLen), true, false)),
	}

	// section text including its label must stay within maxBlockLen
	if utf8.RuneCountInString(ContentLabel+content) <= maxBlockLen {
		blocks = append(blocks, section(ContentLabel+content))
	} else {
		chunks := chunkRunes(content, maxBlockLen-maxPartLabelLen)
		for i, chunk := range chunks {
			blocks = append(blocks, section(fmt.Sprintf("*Content (Part %d/%d):*\n%s", i+1, len(chunks), chunk)))
		}
	}

	blockID := ""
	if msg.DraftID != 0 {
		blockID = DraftBlockPref + strconv.FormatUint(uint64(msg.DraftID), 10)
	}

	approve := slack.NewButtonBlockElement(ActionApprove, ActionApprove,
		slack.NewTextBlockObject(slack.PlainTextType, "👍 Approve", true, false)).
		WithStyle(slack.StylePrimary)
	regenerate := slack.NewButtonBlockElement(ActionRegenerate, ActionRegenerate,
		slack.NewTextBlockObject(slack.PlainTextType, "🔄 Regenerate", true, false)).
		WithStyle(slack.StyleDanger)

	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewActionBlock(blockID, approve, regenerate),
	)

	return &slack.WebhookMessage{
		Text:   title,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

// ParseDraftBlockID extracts the draft id from an actions block id
func ParseDraftBlockID(blockID string) (uint, bool) {
	raw, ok := strings.CutPrefix(blockID, DraftBlockPref)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func chunkRunes(s string, size int) []string {
	r := []rune(s)
	var chunks []string
	for start := 0; start < len(r); start += size {
		end := min(start+size, len(r))
		chunks = append(chunks, string(r[start:end]))
	}
	return chunks
}
