package channels

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/message"
)

func newTestOneBot(t *testing.T) *OneBotChannel {
	t.Helper()
	c, err := NewOneBotChannel(config.OneBotConfig{}, bus.NewMessageBus(), t.TempDir())
	if err != nil {
		t.Fatalf("NewOneBotChannel returned error: %v", err)
	}
	return c
}

func TestOneBotRoundTrip(t *testing.T) {
	c := newTestOneBot(t)

	original := message.New().
		AppendText("a").
		Append(message.At{Target: 123}).
		AppendText("b")

	native, err := c.buildNativeMessage(original)
	if err != nil {
		t.Fatalf("buildNativeMessage returned error: %v", err)
	}
	if native != "a[CQ:at,qq=123]b" {
		t.Fatalf("native = %q, want %q", native, "a[CQ:at,qq=123]b")
	}

	parsed := message.New()
	c.appendCQString(parsed, native)

	if !original.Equal(parsed) {
		t.Fatalf("round trip mismatch: %q vs %q", original.PlainText(), parsed.PlainText())
	}
}

func TestOneBotCQEscapeRoundTrip(t *testing.T) {
	c := newTestOneBot(t)

	original := message.New().AppendText("[hi] & bye, ok")
	native, err := c.buildNativeMessage(original)
	if err != nil {
		t.Fatalf("buildNativeMessage returned error: %v", err)
	}
	if strings.Contains(native, "[hi]") {
		t.Fatalf("native %q should have CQ-escaped brackets", native)
	}

	parsed := message.New()
	c.appendCQString(parsed, native)

	if !original.Equal(parsed) {
		t.Fatalf("escape round trip mismatch: got %q, want %q", parsed.AllText(), original.AllText())
	}
}

func TestOneBotUnmappableMessageIsUnusable(t *testing.T) {
	c := newTestOneBot(t)

	raw := json.RawMessage(`[{"type":"face","data":{"id":"66"}}]`)
	w := c.toWrapper(raw, "", message.Receipt{Platform: "onebot"})

	if !w.IsEmpty() {
		t.Fatalf("unknown segment should map to zero elements, got %d", len(w.Elements()))
	}
	if w.Usable() {
		t.Fatal("wrapper from unmappable native message must be unusable")
	}
}

func TestOneBotSegmentParsing(t *testing.T) {
	c := newTestOneBot(t)

	raw := json.RawMessage(`[
		{"type":"text","data":{"text":"hello "}},
		{"type":"at","data":{"qq":"123"}},
		{"type":"image","data":{"url":"https://example.com/a.png"}},
		{"type":"xml","data":{"data":"<msg/>"}},
		{"type":"poke","data":{"qq":"456"}}
	]`)
	w := c.toWrapper(raw, "", message.Receipt{Platform: "onebot"})

	want := message.New().
		AppendText("hello ").
		Append(message.At{Target: 123})
	img, _ := message.URLImage("https://example.com/a.png")
	want.Append(img, message.Card{Content: "<msg/>"}, message.Nudge{Target: 456})

	if !w.Equal(want) {
		t.Fatalf("parsed wrapper = %q, want %q", w.PlainText(), want.PlainText())
	}
	if !w.Usable() {
		t.Fatal("fully mapped wrapper should be usable")
	}
}

func TestOneBotCQStringFallbackParsing(t *testing.T) {
	c := newTestOneBot(t)

	raw := json.RawMessage(`"hi [CQ:at,qq=9] there"`)
	w := c.toWrapper(raw, "", message.Receipt{Platform: "onebot"})

	at, ok := message.Find[message.At](w)
	if !ok {
		t.Fatal("CQ string should yield an At element")
	}
	if at.Target != 9 {
		t.Fatalf("at.Target = %d, want 9", at.Target)
	}
	if got := w.AllText(); got != "hi  there" {
		t.Fatalf("AllText() = %q, want %q", got, "hi  there")
	}
}

func TestOneBotImageCap(t *testing.T) {
	c := newTestOneBot(t)

	w := message.New()
	for i := 0; i < maxImagesPerMessage+3; i++ {
		img, _ := message.URLImage("https://example.com/a.png")
		w.Append(img)
	}

	native, err := c.buildNativeMessage(w)
	if err != nil {
		t.Fatalf("buildNativeMessage returned error: %v", err)
	}
	if got := strings.Count(native, "[CQ:image,"); got != maxImagesPerMessage {
		t.Fatalf("image segments = %d, want %d", got, maxImagesPerMessage)
	}
}

func TestBuildSendRequest(t *testing.T) {
	action, params, err := buildSendRequest("group:12345", "hi")
	if err != nil {
		t.Fatalf("group chatID returned error: %v", err)
	}
	if action != "send_group_msg" {
		t.Fatalf("action = %q, want send_group_msg", action)
	}
	if p, ok := params.(oneBotSendGroupMsgParams); !ok || p.GroupID != 12345 {
		t.Fatalf("params = %+v, want group 12345", params)
	}

	action, params, err = buildSendRequest("private:678", "hi")
	if err != nil {
		t.Fatalf("private chatID returned error: %v", err)
	}
	if action != "send_private_msg" {
		t.Fatalf("action = %q, want send_private_msg", action)
	}
	if p, ok := params.(oneBotSendPrivateMsgParams); !ok || p.UserID != 678 {
		t.Fatalf("params = %+v, want user 678", params)
	}

	if _, _, err := buildSendRequest("group:abc", "hi"); err == nil {
		t.Fatal("non-numeric group ID should fail")
	}
}

func TestOneBotDedup(t *testing.T) {
	c := newTestOneBot(t)

	if c.isDuplicate("msg-1") {
		t.Fatal("first sighting should not be a duplicate")
	}
	if !c.isDuplicate("msg-1") {
		t.Fatal("second sighting should be a duplicate")
	}
	if c.isDuplicate("") {
		t.Fatal("empty message ID is never deduplicated")
	}
}

func TestParseJSONInt64(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{`123`, 123},
		{`"456"`, 456},
		{``, 0},
	}
	for _, tc := range cases {
		got, err := parseJSONInt64(json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("parseJSONInt64(%q) returned error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parseJSONInt64(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestSendTimeoutStreakResets(t *testing.T) {
	c := newTestOneBot(t)
	timeoutErr := errors.New("OneBot API request timeout: action=send_group_msg")

	for i := int64(1); i < sendTimeoutWarnStreak; i++ {
		if got := c.noteSendTimeout(timeoutErr); got != i {
			t.Fatalf("streak after %d timeouts = %d, want %d", i, got, i)
		}
	}
	if got := c.noteSendTimeout(timeoutErr); got != sendTimeoutWarnStreak {
		t.Fatalf("streak = %d, want %d", got, sendTimeoutWarnStreak)
	}

	// An answered send clears the streak.
	c.sendTimeouts.Store(0)
	if got := c.noteSendTimeout(timeoutErr); got != 1 {
		t.Fatalf("streak after reset = %d, want 1", got)
	}
}
