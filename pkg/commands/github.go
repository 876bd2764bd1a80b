package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/github"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
)

const unsubscribeConfirmTimeout = 15 * time.Second

// GitHubCommand manages webhook subscriptions for the invoking chat.
type GitHubCommand struct {
	client *github.Client
	subs   *github.SubscriptionStore
}

func (c *GitHubCommand) Property() command.Property {
	return command.Property{
		Name:    "github",
		Aliases: []string{"gh"},
		Summary: "Manage GitHub event subscriptions for this chat",
		Help:    "Usage: github sub <owner/repo> | github unsub <owner/repo> | github list",
	}
}

func (c *GitHubCommand) Execute(ctx context.Context, env *command.Env) (*message.Wrapper, error) {
	if len(env.Args) == 0 {
		return message.New().AppendText("Missing argument: github sub|unsub|list"), nil
	}

	target := github.Target{Channel: env.Channel, ChatID: env.ChatID}

	switch env.Args[0] {
	case "list":
		repos := c.subs.ReposFor(target)
		if len(repos) == 0 {
			return message.New().AppendText("This chat has no subscriptions"), nil
		}
		return message.New().AppendText("Subscriptions:\n" + strings.Join(repos, "\n")), nil

	case "sub":
		if len(env.Args) < 2 {
			return message.New().AppendText("Missing argument: github sub <owner/repo>"), nil
		}
		repo := env.Args[1]
		if !strings.Contains(repo, "/") {
			return message.New().AppendText(fmt.Sprintf("Invalid repository name: %s", repo)), nil
		}

		exists, err := c.client.RepoExists(ctx, repo)
		if err != nil {
			return nil, err
		}
		if !exists {
			return message.New().AppendText(fmt.Sprintf("Repository not found: %s", repo)), nil
		}

		if !c.subs.Subscribe(repo, target) {
			return message.New().AppendText(fmt.Sprintf("Already subscribed to %s", repo)), nil
		}
		return message.New().AppendText(fmt.Sprintf("Subscribed to %s", repo)), nil

	case "unsub":
		if len(env.Args) < 2 {
			return message.New().AppendText("Missing argument: github unsub <owner/repo>"), nil
		}
		repo := env.Args[1]

		if !contains(c.subs.ReposFor(target), repo) {
			return message.New().AppendText(fmt.Sprintf("Not subscribed to %s", repo)), nil
		}

		env.Sessions.Register(env.Identity(), unsubscribeConfirmTimeout, c.confirmHandler(env, repo, target))
		return message.New().AppendText(fmt.Sprintf(
			"Unsubscribe from %s? Reply yes within 15 seconds to confirm", repo)), nil
	}

	return message.New().AppendText(fmt.Sprintf("Unknown subcommand: %s", env.Args[0])), nil
}

func (c *GitHubCommand) confirmHandler(env *command.Env, repo string, target github.Target) session.Handler {
	return func(ctx context.Context, msg *message.Wrapper, s *session.Session) {
		defer s.Expire()

		answer := strings.ToLower(strings.TrimSpace(msg.AllText()))
		if answer != "yes" && answer != "y" {
			env.Reply(message.New().AppendText("Unsubscribe cancelled"))
			return
		}

		if c.subs.Unsubscribe(repo, target) {
			env.Reply(message.New().AppendText(fmt.Sprintf("Unsubscribed from %s", repo)))
		} else {
			env.Reply(message.New().AppendText(fmt.Sprintf("Not subscribed to %s", repo)))
		}
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
