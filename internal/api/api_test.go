package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkedin-pipeline/internal/agent/publisher"
	"github.com/linkedin-pipeline/internal/linkedin"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/notify"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/storage/sqlite"
	"github.com/linkedin-pipeline/internal/workflow"
	"github.com/linkedin-pipeline/pkg/logger"
)

const (
	testSecret = "signing-secret"
	testAPIKey = "api-key"
)

var testNow = time.Unix(1700000000, 0)

type fakeScheduler struct {
	mu      sync.Mutex
	err     error
	calls   []workflow.Trigger
	params  []workflow.Params
	running bool
}

func (f *fakeScheduler) record(trigger workflow.Trigger, params workflow.Params) (*workflow.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, trigger)
	f.params = append(f.params, params)
	return &workflow.Execution{ID: "20231114_221320", Trigger: trigger}, nil
}

func (f *fakeScheduler) Execute(ctx context.Context, trigger workflow.Trigger, params workflow.Params) (*workflow.Execution, error) {
	return f.record(trigger, params)
}

func (f *fakeScheduler) ExecuteAsync(ctx context.Context, trigger workflow.Trigger, params workflow.Params) (*workflow.Execution, error) {
	return f.record(trigger, params)
}

func (f *fakeScheduler) Status() workflow.Status {
	return workflow.Status{IsRunning: f.running, Timestamp: testNow}
}

type fakePublisher struct {
	published []uint
	shared    []string
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, id uint) (*publisher.PublishResult, error) {
	if f.err != nil {
		return &publisher.PublishResult{DraftID: id}, f.err
	}
	f.published = append(f.published, id)
	return &publisher.PublishResult{DraftID: id, PostURN: "urn:li:share:1"}, nil
}

func (f *fakePublisher) ShareText(ctx context.Context, title, content string) *linkedin.ShareResult {
	f.shared = append(f.shared, title+"|"+content)
	return &linkedin.ShareResult{Success: true}
}

type fakeReplier struct {
	channel string
	text    string
}

func (f *fakeReplier) Reply(ctx context.Context, channel, text string) error {
	f.channel, f.text = channel, text
	return nil
}

type fakeNotifier struct {
	messages []notify.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.Message) notify.Result {
	f.messages = append(f.messages, msg)
	return notify.Result{Sent: true}
}

type fakeTopics struct {
	topics []string
}

func (f *fakeTopics) Current(ctx context.Context) ([]string, error) { return f.topics, nil }

func (f *fakeTopics) Add(ctx context.Context, csv string) ([]string, error) {
	var added []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			added = append(added, t)
		}
	}
	f.topics = append(f.topics, added...)
	return added, nil
}

func (f *fakeTopics) Reset(ctx context.Context) ([]string, error) {
	f.topics = []string{"LLM"}
	return f.topics, nil
}

type fixture struct {
	server    *Server
	scheduler *fakeScheduler
	publisher *fakePublisher
	replier   *fakeReplier
	notifier  *fakeNotifier
	topics    *fakeTopics
}

func newFixture(t *testing.T, repo storage.Repository) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := NewVerifier(testSecret, 300*time.Second)
	verifier.now = func() time.Time { return testNow }

	f := &fixture{
		scheduler: &fakeScheduler{},
		publisher: &fakePublisher{},
		replier:   &fakeReplier{},
		notifier:  &fakeNotifier{},
		topics:    &fakeTopics{topics: []string{"RAG", "agents"}},
	}
	f.server = NewServer(context.Background(), Deps{
		Scheduler:  f.scheduler,
		Publisher:  f.publisher,
		Notifier:   f.notifier,
		Replier:    f.replier,
		Topics:     f.topics,
		Repository: repo,
		Verifier:   verifier,
		APIKey:     testAPIKey,
	}, logger.Nop())
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signedRequest(path, contentType, body string, ts time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	stamp := strconv.FormatInt(ts.Unix(), 10)
	req.Header.Set(HeaderTimestamp, stamp)
	req.Header.Set(HeaderSignature, Sign(testSecret, stamp, []byte(body)))
	return req
}

func interactiveRequest(payload string) *http.Request {
	body := url.Values{"payload": {payload}}.Encode()
	return signedRequest("/slack/interactive", "application/x-www-form-urlencoded", body, testNow)
}

func eventRequest(body string) *http.Request {
	return signedRequest("/slack/events", "application/json", body, testNow)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func reviewPayload(action, blockID string) string {
	return `{"type":"block_actions","user":{"id":"U1","name":"reviewer"},` +
		`"actions":[{"type":"button","action_id":"` + action + `","block_id":"` + blockID + `","value":"` + action + `"}],` +
		`"message":{"type":"message","blocks":[` +
		`{"type":"header","text":{"type":"plain_text","text":"📝 RAG lessons"}},` +
		`{"type":"section","text":{"type":"mrkdwn","text":"*Content:*\nThree things we learned."}}]}}`
}

func TestVerifier(t *testing.T) {
	v := NewVerifier(testSecret, 300*time.Second)
	v.now = func() time.Time { return testNow }
	body := []byte("payload")
	stamp := strconv.FormatInt(testNow.Unix(), 10)

	if err := v.Verify(stamp, Sign(testSecret, stamp, body), body); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
	if err := v.Verify(stamp, Sign("other", stamp, body), body); err == nil {
		t.Error("expected mismatch to fail")
	}
	stale := strconv.FormatInt(testNow.Add(-301*time.Second).Unix(), 10)
	if err := v.Verify(stale, Sign(testSecret, stale, body), body); err == nil {
		t.Error("expected stale timestamp to fail")
	}
	if err := v.Verify("abc", "v0=00", body); err == nil {
		t.Error("expected bad timestamp to fail")
	}

	empty := NewVerifier("", 0)
	if err := empty.Verify(stamp, Sign("", stamp, body), body); err == nil {
		t.Error("expected empty secret to reject")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "healthy" {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestExecuteRequiresAPIKey(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/execute", nil)
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/execute", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", rec.Code)
	}
	if len(f.scheduler.calls) != 0 {
		t.Error("expected no execution")
	}
}

func TestExecute(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(`{"topics":["rag"]}`))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["status"] != "success" || body["execution_id"] != "20231114_221320" {
		t.Errorf("unexpected body %v", body)
	}
	if len(f.scheduler.calls) != 1 || f.scheduler.calls[0] != workflow.TriggerAPI || f.scheduler.params[0].Topics[0] != "rag" {
		t.Errorf("unexpected scheduler calls %v %v", f.scheduler.calls, f.scheduler.params)
	}
}

func TestExecuteRejected(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{workflow.ErrAlreadyRunning, http.StatusConflict},
		{workflow.ErrCooldown, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		f := newFixture(t, nil)
		f.scheduler.err = tc.err

		req := httptest.NewRequest(http.MethodPost, "/api/execute", nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		if rec := f.do(req); rec.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.scheduler.running = true

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := f.do(req)
	if rec.Code != http.StatusOK || decode(t, rec)["is_running"] != true {
		t.Errorf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
}

func TestInteractiveRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	req := interactiveRequest(reviewPayload("approve", "draft:7"))
	req.Header.Set(HeaderSignature, "v0=deadbeef")

	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if len(f.publisher.published) != 0 {
		t.Error("expected nothing published")
	}
}

func TestInteractiveApproveStoredDraft(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(interactiveRequest(reviewPayload("approve", "draft:7")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["text"] != "✅ Post approved and shared successfully by reviewer!" || body["replace_original"] != true {
		t.Errorf("unexpected response %v", body)
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0] != 7 {
		t.Errorf("expected draft 7 published, got %v", f.publisher.published)
	}
}

func TestInteractiveApproveFromMessageText(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = storage.ErrNotFound

	rec := f.do(interactiveRequest(reviewPayload("approve", "draft:9")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if len(f.publisher.shared) != 1 || f.publisher.shared[0] != "RAG lessons|Three things we learned." {
		t.Errorf("expected message text to be shared, got %v", f.publisher.shared)
	}
}

func TestInteractiveRegenerate(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(interactiveRequest(reviewPayload("regenerate", "actions")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(decode(t, rec)["text"].(string), "🔄 Content regeneration initiated by reviewer") {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Title != "Regenerating: RAG lessons" {
		t.Errorf("unexpected notifications %+v", f.notifier.messages)
	}
	if len(f.scheduler.calls) != 1 || f.scheduler.calls[0] != workflow.TriggerSlack {
		t.Errorf("expected a slack-triggered run, got %v", f.scheduler.calls)
	}
}

func TestInteractiveInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(interactiveRequest(reviewPayload("delete", "actions"))); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", rec.Code)
	}
	if rec := f.do(interactiveRequest("{not json")); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad payload, got %d", rec.Code)
	}
}

func TestEventsURLVerification(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/slack/events",
		strings.NewReader(`{"token":"t","challenge":"abc123","type":"url_verification"}`))

	rec := f.do(req)
	if rec.Code != http.StatusOK || decode(t, rec)["challenge"] != "abc123" {
		t.Errorf("unexpected challenge response %d %s", rec.Code, rec.Body.String())
	}
}

func messageEvent(text, botID string) string {
	event, _ := json.Marshal(map[string]any{
		"token":      "t",
		"team_id":    "T1",
		"api_app_id": "A1",
		"type":       "event_callback",
		"event_id":   "Ev1",
		"event_time": 1700000000,
		"event": map[string]any{
			"type":    "message",
			"channel": "C1",
			"user":    "U1",
			"text":    text,
			"bot_id":  botID,
		},
	})
	return string(event)
}

func TestEventsCommands(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Hello!", "👋 Hello!"},
		{"show topics", "*Current topics:*\n• RAG\n• agents"},
		{"add: Vector DBs, MLOps", "✅ Topics updated successfully!\n*Current topics:*\n• RAG\n• agents\n• Vector DBs\n• MLOps"},
		{"  Clear Topics ", "✅ Topics reset to defaults."},
	}
	for _, tc := range cases {
		f := newFixture(t, nil)
		rec := f.do(eventRequest(messageEvent(tc.text, "")))
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d %s", tc.text, rec.Code, rec.Body.String())
		}
		if f.replier.channel != "C1" || !strings.HasPrefix(f.replier.text, tc.want) {
			t.Errorf("%q: unexpected reply %q", tc.text, f.replier.text)
		}
	}
}

func TestEventsStartScan(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(eventRequest(messageEvent("start scan", ""))); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.scheduler.params) != 1 || len(f.scheduler.params[0].Topics) != 2 {
		t.Errorf("expected scan with stored topics, got %+v", f.scheduler.params)
	}
	if !strings.HasPrefix(f.replier.text, "🚀 Starting LinkedIn post scan") {
		t.Errorf("unexpected reply %q", f.replier.text)
	}
}

func TestEventsIgnoresBotsAndChecksSignature(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(eventRequest(messageEvent("show topics", "B1"))); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.replier.text != "" {
		t.Errorf("expected bot message to be ignored, got reply %q", f.replier.text)
	}

	req := signedRequest("/slack/events", "application/json", messageEvent("show topics", ""), testNow.Add(-10*time.Minute))
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for stale request, got %d", rec.Code)
	}
}

func TestEventsUnknownTypeAcknowledged(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"token":"t","team_id":"T1","type":"event_callback","event_id":"Ev2",` +
		`"event":{"type":"made_up_event","channel":"C1"}}`

	if rec := f.do(eventRequest(body)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed unknown event, got %d %s", rec.Code, rec.Body.String())
	}
	if f.replier.text != "" {
		t.Errorf("expected no reply, got %q", f.replier.text)
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	if rec := f.do(unsigned); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unsigned event, got %d", rec.Code)
	}
	if rec := f.do(eventRequest("{not json")); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad payload, got %d", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	repo, err := sqlite.New("file::memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	_, err = repo.SavePosts(context.Background(), []models.ScrapedPost{
		{RunID: "r", DedupKey: "a", Text: "rag", Reactions: 10, MatchedTopics: models.StringSlice{"RAG"}, ScrapedAt: testNow},
		{RunID: "r", DedupKey: "b", Text: "agents", Reactions: 3, Comments: 1, MatchedTopics: models.StringSlice{"agents", "RAG"}, ScrapedAt: testNow},
	})
	if err != nil {
		t.Fatalf("SavePosts: %v", err)
	}

	f := newFixture(t, repo)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Engagement by Topic") {
		t.Error("expected engagement chart in dashboard")
	}

	posts, _ := repo.ListPosts(context.Background(), storage.PostFilter{})
	stats := topicStats(posts)
	if len(stats) != 2 || stats[0].Topic != "RAG" || stats[0].Engagement != 14 || stats[0].Posts != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
