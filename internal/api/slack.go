package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/linkedin-pipeline/internal/agent/publisher"
	"github.com/linkedin-pipeline/internal/notify"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/workflow"
)

const helpText = "👋 Hello! I'm ready to help you manage AI topics.\n" +
	"*Available commands:*\n" +
	"• `add: topic1, topic2, ...` - Add new topics\n" +
	"• `show topics` - Display current topics\n" +
	"• `clear topics` - Reset to default topics\n" +
	"• `start scan` - Begin scanning with current topics"

// interactiveResponse replaces the review message in the channel
type interactiveResponse struct {
	ResponseType    string `json:"response_type"`
	ReplaceOriginal bool   `json:"replace_original"`
	Text            string `json:"text"`
}

func inChannel(text string) interactiveResponse {
	return interactiveResponse{ResponseType: "in_channel", ReplaceOriginal: true, Text: text}
}

// verifiedBody reads the request body and checks its Slack signature,
// writing a 401 when it does not verify
func (s *Server) verifiedBody(c *gin.Context, body []byte) bool {
	err := s.deps.Verifier.Verify(c.GetHeader(HeaderTimestamp), c.GetHeader(HeaderSignature), body)
	if err != nil {
		s.log.Warn().Err(err).Str("path", c.FullPath()).Msg("Rejected Slack request")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid request signature"})
		return false
	}
	return true
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to read body"})
		return nil, false
	}
	return body, true
}

// slackInteractive handles the approve and regenerate buttons
func (s *Server) slackInteractive(c *gin.Context) {
	body, ok := readBody(c)
	if !ok || !s.verifiedBody(c, body) {
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid form body"})
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(form.Get("payload")), &callback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON payload"})
		return
	}
	actions := callback.ActionCallback.BlockActions
	if len(actions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid action"})
		return
	}
	action := actions[0]
	user := callback.User.Name
	if user == "" {
		user = callback.User.ID
	}
	log := s.log.With().Str("action", action.Value).Str("user", user).Logger()

	switch action.Value {
	case notify.ActionApprove:
		text, status := s.approve(c.Request.Context(), action, callback.Message, user)
		log.Info().Int("status", status).Msg("Handled approve action")
		c.JSON(status, inChannel(text))

	case notify.ActionRegenerate:
		title, _ := draftFromBlocks(callback.Message)
		c.JSON(http.StatusOK, inChannel(s.regenerate(c.Request.Context(), title, user)))

	default:
		log.Warn().Msg("Unknown Slack action")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid action"})
	}
}

// approve publishes the reviewed draft. Messages that carry a draft id
// publish the stored draft; older ones share the text shown in the message.
func (s *Server) approve(ctx context.Context, action *slack.BlockAction, msg slack.Message, user string) (string, int) {
	if id, ok := notify.ParseDraftBlockID(action.BlockID); ok {
		res, err := s.deps.Publisher.Publish(ctx, id)
		switch {
		case err == nil:
			return fmt.Sprintf("✅ Post approved and shared successfully by %s!", user), http.StatusOK
		case errors.Is(err, publisher.ErrNotPublishable):
			return fmt.Sprintf("❌ Error sharing post: %v", err), http.StatusOK
		case errors.Is(err, storage.ErrNotFound):
			// fall through to the message text
		default:
			reason := err.Error()
			if res != nil && res.Share != nil && res.Share.Error != "" {
				reason = res.Share.Error
			}
			return fmt.Sprintf("❌ Error sharing post: %s", reason), http.StatusOK
		}
	}

	title, content := draftFromBlocks(msg)
	if content == "" {
		return "❌ Error sharing post: no content found in message", http.StatusBadRequest
	}
	share := s.deps.Publisher.ShareText(ctx, title, content)
	if !share.Success {
		return fmt.Sprintf("❌ Error sharing post: %s", share.Error), http.StatusOK
	}
	return fmt.Sprintf("✅ Post approved and shared successfully by %s!", user), http.StatusOK
}

// regenerate tells the reviewer a new draft is coming and starts a run
func (s *Server) regenerate(ctx context.Context, title, user string) string {
	if s.deps.Notifier != nil {
		res := s.deps.Notifier.Notify(ctx, notify.Message{
			Title:   "Regenerating: " + title,
			Content: fmt.Sprintf("🔄 Content regeneration requested by %s. Starting new generation process...", user),
		})
		if !res.Sent {
			s.log.Warn().Str("error", res.Error).Msg("Failed to announce regeneration")
		}
	}

	if _, err := s.deps.Scheduler.ExecuteAsync(s.baseCtx, workflow.TriggerSlack, workflow.Params{}); err != nil {
		return fmt.Sprintf("❌ Error regenerating content: %v", err)
	}
	return fmt.Sprintf("🔄 Content regeneration initiated by %s. A new post will be generated and sent for review.", user)
}

// draftFromBlocks recovers the title and content from a review message
func draftFromBlocks(msg slack.Message) (string, string) {
	var title string
	var parts []string
	for _, block := range msg.Blocks.BlockSet {
		switch b := block.(type) {
		case *slack.HeaderBlock:
			if b.Text != nil {
				title = strings.TrimPrefix(b.Text.Text, notify.TitlePrefix)
			}
		case *slack.SectionBlock:
			if b.Text == nil {
				continue
			}
			text := b.Text.Text
			if rest, ok := strings.CutPrefix(text, notify.ContentLabel); ok {
				parts = append(parts, rest)
			} else if strings.HasPrefix(text, "*Content (Part ") {
				if i := strings.Index(text, "\n"); i >= 0 {
					parts = append(parts, text[i+1:])
				}
			}
		}
	}
	return title, strings.Join(parts, "")
}

// slackEvents answers the url verification handshake and bot commands
func (s *Server) slackEvents(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var envelope struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON payload"})
		return
	}
	if envelope.Type == slackevents.URLVerification {
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	}

	if !s.verifiedBody(c, body) {
		return
	}

	// inner event types slackevents does not map are acknowledged and ignored
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		s.log.Debug().Err(err).Str("type", envelope.Type).Msg("Ignoring unparsed Slack event")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if event.Type == slackevents.CallbackEvent {
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok && msg.BotID == "" {
			if reply := s.command(c.Request.Context(), msg.Text); reply != "" {
				if err := s.deps.Replier.Reply(c.Request.Context(), msg.Channel, reply); err != nil {
					s.log.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to reply to Slack message")
					c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to send reply"})
					return
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// command runs a chat command and returns the reply, or "" for text that
// is not a command
func (s *Server) command(ctx context.Context, text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "hello!"):
		return helpText

	case strings.HasPrefix(lower, "add:"):
		if _, err := s.deps.Topics.Add(ctx, trimmed[len("add:"):]); err != nil {
			return "❌ Failed to update topics. Please try again."
		}
		current, err := s.deps.Topics.Current(ctx)
		if err != nil {
			return "❌ Failed to update topics. Please try again."
		}
		return "✅ Topics updated successfully!\n*Current topics:*\n" + bullets(current)

	case lower == "show topics":
		current, err := s.deps.Topics.Current(ctx)
		if err != nil {
			return fmt.Sprintf("❌ Error processing command: %v", err)
		}
		return "*Current topics:*\n" + bullets(current)

	case lower == "clear topics":
		if _, err := s.deps.Topics.Reset(ctx); err != nil {
			return "❌ Failed to reset topics."
		}
		return "✅ Topics reset to defaults."

	case lower == "start scan":
		current, err := s.deps.Topics.Current(ctx)
		if err != nil {
			return fmt.Sprintf("❌ Error processing command: %v", err)
		}
		if _, err := s.deps.Scheduler.ExecuteAsync(s.baseCtx, workflow.TriggerSlack, workflow.Params{Topics: current}); err != nil {
			return fmt.Sprintf("❌ Error processing command: %v", err)
		}
		return "🚀 Starting LinkedIn post scan with the following topics:\n" + bullets(current)
	}
	return ""
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}
