package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/github"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/user"
)

func newTestEnv(t *testing.T, args ...string) *command.Env {
	t.Helper()

	env := &command.Env{
		Channel:  "onebot",
		ChatID:   "group:1",
		SenderID: "42",
		Message:  message.New().AppendText("/" + strings.Join(args, " ")),
		Args:     args[1:],
		Users:    user.NewStore(t.TempDir(), 100, 10),
		Sessions: session.NewManager(),
		Registry: command.NewRegistry(),
		Bus:      bus.NewMessageBus(),
	}
	env.User = env.Users.GetOrCreate(env.UserKey())
	return env
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t, "version")

	reply, err := (&VersionCommand{}).Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "Comet") {
		t.Fatalf("reply = %q, want it to mention Comet", reply.AllText())
	}
}

func TestCheckInCommand(t *testing.T) {
	env := newTestEnv(t, "checkin")
	cmd := &CheckInCommand{}

	reply, err := cmd.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "+10 coin") {
		t.Fatalf("reply = %q, want a grant message", reply.AllText())
	}

	reply, err = cmd.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("second Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "already checked in") {
		t.Fatalf("reply = %q, want an already-checked-in message", reply.AllText())
	}
}

func TestHelpListsCommands(t *testing.T) {
	env := newTestEnv(t, "help")
	env.Registry.MustRegister(&VersionCommand{}, &HelpCommand{}, &JikiCommand{})

	reply, err := (&HelpCommand{}).Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	text := reply.AllText()
	for _, want := range []string{"version", "help", "jiki", "(cost 8)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("help output %q missing %q", text, want)
		}
	}
}

func TestHelpDetailShowsAliasesAndCost(t *testing.T) {
	env := newTestEnv(t, "help", "version")
	env.Registry.MustRegister(&VersionCommand{})

	reply, err := (&HelpCommand{}).Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "Aliases: v") {
		t.Fatalf("detail output %q missing aliases", reply.AllText())
	}
}

func TestGitHubUnsubscribeConfirmFlow(t *testing.T) {
	env := newTestEnv(t, "github", "unsub", "octo/widgets")

	subs := github.NewSubscriptionStore(t.TempDir())
	target := github.Target{Channel: env.Channel, ChatID: env.ChatID}
	subs.Subscribe("octo/widgets", target)

	cmd := &GitHubCommand{subs: subs}
	reply, err := cmd.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "Reply yes") {
		t.Fatalf("reply = %q, want a confirmation prompt", reply.AllText())
	}
	if env.Sessions.Count() != 1 {
		t.Fatalf("session count = %d, want 1", env.Sessions.Count())
	}

	if !env.Sessions.Dispatch(context.Background(), env.Identity(), message.New().AppendText("yes")) {
		t.Fatal("confirmation message should be delivered to the session")
	}

	if len(subs.ReposFor(target)) != 0 {
		t.Fatal("subscription should be removed after confirmation")
	}
	if env.Sessions.Count() != 0 {
		t.Fatalf("session count after confirm = %d, want 0", env.Sessions.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := env.Bus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected an async confirmation reply")
	}
	if !strings.Contains(out.Message.AllText(), "Unsubscribed from octo/widgets") {
		t.Fatalf("async reply = %q, want unsubscribe confirmation", out.Message.AllText())
	}
}

func TestGitHubUnsubscribeNotSubscribed(t *testing.T) {
	env := newTestEnv(t, "github", "unsub", "octo/widgets")

	cmd := &GitHubCommand{subs: github.NewSubscriptionStore(t.TempDir())}
	reply, err := cmd.Execute(context.Background(), env)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(reply.AllText(), "Not subscribed") {
		t.Fatalf("reply = %q, want a not-subscribed message", reply.AllText())
	}
	if env.Sessions.Count() != 0 {
		t.Fatal("no session should open for an unknown subscription")
	}
}
