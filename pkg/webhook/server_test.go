package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/github"
)

const pushBody = `{
	"ref": "refs/heads/main",
	"compare": "https://github.com/octo/widgets/compare/abc...def",
	"repository": {"full_name": "octo/widgets"},
	"pusher": {"name": "octocat"},
	"commits": [
		{"id": "def4567890abcdef", "message": "Fix the flux capacitor\n\ndetails", "author": {"name": "octocat"}}
	]
}`

func newTestServer(t *testing.T) (*Server, *bus.MessageBus, *github.SubscriptionStore) {
	t.Helper()

	messageBus := bus.NewMessageBus()
	subs := github.NewSubscriptionStore(t.TempDir())
	cfg := config.WebhookConfig{
		Repos: []config.RepoSecret{
			{Name: "octo/widgets", Secret: "s3cret"},
			{Name: "open/*", Secret: ""},
		},
	}
	return NewServer(cfg, subs, messageBus), messageBus, subs
}

func deliver(t *testing.T, s *Server, event, body, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/github", bytes.NewBufferString(body))
	req.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestPushDeliveryBroadcastsToSubscribers(t *testing.T) {
	s, messageBus, subs := newTestServer(t)
	subs.Subscribe("octo/widgets", github.Target{Channel: "onebot", ChatID: "group:1"})

	rec := deliver(t, s, "push", pushBody, sign("s3cret", []byte(pushBody)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := messageBus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound message for the subscriber")
	}
	if out.Channel != "onebot" || out.ChatID != "group:1" {
		t.Fatalf("outbound target = %s/%s, want onebot/group:1", out.Channel, out.ChatID)
	}
	text := out.Message.PlainText()
	if !strings.Contains(text, "octocat pushed 1 commit(s) to octo/widgets:main") {
		t.Fatalf("unexpected push summary: %q", text)
	}
	if !strings.Contains(text, "def4567") || strings.Contains(text, "details") {
		t.Fatalf("commit line should show short SHA and title only: %q", text)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := deliver(t, s, "push", pushBody, sign("wrong", []byte(pushBody)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Code != http.StatusForbidden {
		t.Fatalf("body code = %d, want %d", resp.Code, http.StatusForbidden)
	}
}

func TestUnconfiguredRepositoryRejected(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"repository": {"full_name": "stranger/repo"}}`
	rec := deliver(t, s, "push", body, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestWildcardOwnerAcceptsUnsigned(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"repository": {"full_name": "open/anything"}, "ref": "refs/heads/main", "pusher": {"name": "a"}, "commits": []}`
	rec := deliver(t, s, "push", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestUnsupportedEventRefused(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := deliver(t, s, "issues", pushBody, sign("s3cret", []byte(pushBody)))
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rec.Code)
	}
}

func TestPingAnswered(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"zen": "ok", "repository": {"full_name": "octo/widgets"}}`
	rec := deliver(t, s, "ping", body, sign("s3cret", []byte(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPullRequestRendering(t *testing.T) {
	var e PullRequestEvent
	body := `{
		"action": "closed",
		"number": 7,
		"repository": {"full_name": "octo/widgets"},
		"pull_request": {"title": "Add turbo mode", "html_url": "https://github.com/octo/widgets/pull/7", "merged": true, "user": {"login": "octocat"}}
	}`
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w := e.ToWrapper()
	if !w.Usable() {
		t.Fatal("merged PR event should render")
	}
	text := w.PlainText()
	if !strings.Contains(text, "octocat merged pull request #7") {
		t.Fatalf("unexpected PR summary: %q", text)
	}
}

func TestPullRequestIgnoredActionsUnusable(t *testing.T) {
	e := PullRequestEvent{Action: "synchronize"}
	if e.ToWrapper().Usable() {
		t.Fatal("synchronize action should produce an unusable wrapper")
	}
}

func TestEmptyPushUnusable(t *testing.T) {
	e := PushEvent{Ref: "refs/heads/main"}
	if e.ToWrapper().Usable() {
		t.Fatal("push with zero commits should produce an unusable wrapper")
	}
}
