package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/user"
)

type echoCommand struct{}

func (c *echoCommand) Property() command.Property {
	return command.Property{Name: "echo"}
}

func (c *echoCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	return message.New().AppendText("echo: " + env.Message.AllText()), nil
}

func newTestLoop(t *testing.T) (*Loop, *bus.MessageBus, *session.Manager) {
	t.Helper()

	messageBus := bus.NewMessageBus()
	sessions := session.NewManager()
	registry := command.NewRegistry()
	registry.MustRegister(&echoCommand{})

	users := user.NewStore(t.TempDir(), 100, 10)
	dispatcher := command.NewDispatcher(registry, users, sessions, messageBus, []string{"/"})
	return NewLoop(messageBus, dispatcher, sessions), messageBus, sessions
}

func msg(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:  "onebot",
		SenderID: "42",
		ChatID:   "group:1",
		Message:  message.New().AppendText(text),
	}
}

func TestCommandReplyPublished(t *testing.T) {
	loop, messageBus, _ := newTestLoop(t)

	loop.handleInbound(context.Background(), msg("/echo hi"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := messageBus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound reply")
	}
	if out.ChatID != "group:1" {
		t.Fatalf("reply ChatID = %q, want group:1", out.ChatID)
	}
	if got := out.Message.AllText(); got != "echo: /echo hi" {
		t.Fatalf("reply = %q, want %q", got, "echo: /echo hi")
	}
}

func TestActiveSessionOwnsTraffic(t *testing.T) {
	loop, messageBus, sessions := newTestLoop(t)

	var received string
	id := session.Identity{Channel: "onebot", ChatID: "group:1", SenderID: "42"}
	sessions.Register(id, time.Minute, func(ctx context.Context, m *message.Wrapper, s *session.Session) {
		received = m.AllText()
	})

	// Even command-shaped text goes to the session, not the dispatcher.
	loop.handleInbound(context.Background(), msg("/echo hi"))

	if received != "/echo hi" {
		t.Fatalf("session received %q, want %q", received, "/echo hi")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := messageBus.SubscribeOutbound(ctx); ok {
		t.Fatal("no dispatcher reply expected while a session is active")
	}
}

func TestNilWrapperIgnored(t *testing.T) {
	loop, messageBus, _ := newTestLoop(t)

	loop.handleInbound(context.Background(), bus.InboundMessage{Channel: "onebot", ChatID: "group:1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := messageBus.SubscribeOutbound(ctx); ok {
		t.Fatal("nil wrapper should produce no reply")
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	loop, messageBus, _ := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	messageBus.PublishInbound(msg("/echo hi"))
	go loop.Stop()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop and cancel")
	}
}
