package command

import (
	"context"
	"strings"
	"testing"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/user"
)

type panicCommand struct{}

func (c *panicCommand) Property() Property { return Property{Name: "boom"} }

func (c *panicCommand) Execute(ctx context.Context, env *Env) (*message.Wrapper, error) {
	panic("handler exploded")
}

func newTestDispatcher(t *testing.T, initialCoin int64, cmds ...Command) (*Dispatcher, *user.Store) {
	t.Helper()

	registry := NewRegistry()
	for _, cmd := range cmds {
		if err := registry.Register(cmd); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
	}

	users := user.NewStore(t.TempDir(), initialCoin, 10)
	sessions := session.NewManager()
	return NewDispatcher(registry, users, sessions, bus.NewMessageBus(), []string{"/"}), users
}

func inbound(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "onebot",
		SenderID: "42",
		ChatID:   "group:1",
		Message:  message.New().AppendText(text),
	}
}

func TestAliasAndNameProduceIdenticalOutput(t *testing.T) {
	d, _ := newTestDispatcher(t, 100,
		&fakeCommand{prop: Property{Name: "version", Aliases: []string{"v"}}, reply: "Comet dev"})

	byName := d.Dispatch(context.Background(), inbound("/version"))
	byAlias := d.Dispatch(context.Background(), inbound("/v"))

	if byName == nil || byAlias == nil {
		t.Fatal("both invocations should produce a reply")
	}
	if !byName.Equal(byAlias) {
		t.Fatalf("alias output %q differs from name output %q", byAlias.PlainText(), byName.PlainText())
	}
}

func TestUnknownCommandReply(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	reply := d.Dispatch(context.Background(), inbound("/nope"))
	if reply == nil || !strings.Contains(reply.AllText(), "No such command") {
		t.Fatalf("reply = %v, want a no-such-command message", reply)
	}
}

func TestOrdinaryChatIgnored(t *testing.T) {
	d, _ := newTestDispatcher(t, 100,
		&fakeCommand{prop: Property{Name: "version"}, reply: "x"})

	if reply := d.Dispatch(context.Background(), inbound("version without prefix")); reply != nil {
		t.Fatalf("unprefixed text should be ignored, got %q", reply.PlainText())
	}
}

func TestQuotaRefusalLeavesBalanceUntouched(t *testing.T) {
	d, users := newTestDispatcher(t, 5,
		&fakeCommand{prop: Property{Name: "jiki", Cost: 8}, reply: "should not run"})

	reply := d.Dispatch(context.Background(), inbound("/jiki foo"))
	if reply == nil || !strings.Contains(reply.AllText(), "Insufficient coin") {
		t.Fatalf("reply = %v, want an insufficient-coin message", reply)
	}
	if got := users.Balance("onebot:42"); got != 5 {
		t.Fatalf("balance after refusal = %d, want 5", got)
	}
}

func TestCostChargedOnSuccess(t *testing.T) {
	d, users := newTestDispatcher(t, 10,
		&fakeCommand{prop: Property{Name: "jiki", Cost: 8}, reply: "ok"})

	if reply := d.Dispatch(context.Background(), inbound("/jiki foo")); reply == nil {
		t.Fatal("costed command with sufficient balance should run")
	}
	if got := users.Balance("onebot:42"); got != 2 {
		t.Fatalf("balance after charge = %d, want 2", got)
	}
}

func TestUnusableWrapperSuppressed(t *testing.T) {
	d, _ := newTestDispatcher(t, 100,
		&fakeCommand{prop: Property{Name: "version"}, reply: "x"})

	msg := inbound("/version")
	msg.Message.SetUsable(false)

	if reply := d.Dispatch(context.Background(), msg); reply != nil {
		t.Fatalf("unusable wrapper must not be command-matched, got %q", reply.PlainText())
	}
}

func TestPanicInHandlerYieldsGenericReply(t *testing.T) {
	d, _ := newTestDispatcher(t, 100, &panicCommand{})

	reply := d.Dispatch(context.Background(), inbound("/boom"))
	if reply == nil || !strings.Contains(reply.AllText(), "Something went wrong") {
		t.Fatalf("reply = %v, want the generic error message", reply)
	}
}

func TestHandlerUnusableReplySuppressed(t *testing.T) {
	d, _ := newTestDispatcher(t, 100, &unusableReplyCommand{})

	if reply := d.Dispatch(context.Background(), inbound("/quiet")); reply != nil {
		t.Fatalf("unusable reply should be suppressed, got %q", reply.PlainText())
	}
}

type unusableReplyCommand struct{}

func (c *unusableReplyCommand) Property() Property { return Property{Name: "quiet"} }

func (c *unusableReplyCommand) Execute(ctx context.Context, env *Env) (*message.Wrapper, error) {
	return message.New().AppendText("partial").SetUsable(false), nil
}
