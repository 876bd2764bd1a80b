package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/user"
	"github.com/cometbot/comet/pkg/utils"
)

// Dispatcher parses normalized inbound text into a command invocation:
// strip a recognized prefix, resolve the name or alias, charge the cost,
// run the handler. Text without a prefix is ordinary chat and is ignored
// here.
type Dispatcher struct {
	registry *Registry
	users    *user.Store
	sessions *session.Manager
	bus      *bus.MessageBus
	prefixes []string
}

func NewDispatcher(registry *Registry, users *user.Store, sessions *session.Manager, messageBus *bus.MessageBus, prefixes []string) *Dispatcher {
	if len(prefixes) == 0 {
		prefixes = []string{"/"}
	}
	return &Dispatcher{
		registry: registry,
		users:    users,
		sessions: sessions,
		bus:      messageBus,
		prefixes: prefixes,
	}
}

// Dispatch runs one inbound message through the command pipeline and
// returns the reply wrapper, or nil when there is nothing to say (ordinary
// chat, unusable wrapper, handler chose silence).
func (d *Dispatcher) Dispatch(ctx context.Context, in bus.InboundMessage) *message.Wrapper {
	if in.Message == nil || !in.Message.Usable() {
		return nil
	}

	text := strings.TrimSpace(in.Message.AllText())
	rest, ok := d.stripPrefix(text)
	if !ok {
		return nil
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil
	}
	name := fields[0]

	cmd, ok := d.registry.Resolve(name)
	if !ok {
		return message.New().AppendText(fmt.Sprintf("No such command: %s", name))
	}

	env := &Env{
		Channel:    in.Channel,
		ChatID:     in.ChatID,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Message:    in.Message,
		Args:       fields[1:],
		Users:      d.users,
		Sessions:   d.sessions,
		Registry:   d.registry,
		Bus:        d.bus,
	}
	env.User = d.users.GetOrCreate(env.UserKey())

	prop := cmd.Property()
	if prop.Cost > 0 {
		if err := d.users.Consume(env.UserKey(), prop.Cost); err != nil {
			if errors.Is(err, user.ErrInsufficientCoin) {
				return message.New().AppendText(fmt.Sprintf(
					"Insufficient coin: %s costs %d, you have %d",
					prop.Name, prop.Cost, d.users.Balance(env.UserKey()),
				))
			}
			logger.ErrorCF("command", "Failed to charge command cost", map[string]interface{}{
				"command": prop.Name,
				"user":    env.UserKey(),
				"error":   err.Error(),
			})
			return message.New().AppendText("Something went wrong, please try again later")
		}
	}

	return d.execute(ctx, cmd, env)
}

// execute runs a handler behind a panic barrier so a broken command body
// cannot take down the process.
func (d *Dispatcher) execute(ctx context.Context, cmd Command, env *Env) (reply *message.Wrapper) {
	prop := cmd.Property()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("command", "Command handler panicked", map[string]interface{}{
				"command": prop.Name,
				"user":    env.UserKey(),
				"panic":   fmt.Sprintf("%v", r),
			})
			reply = message.New().AppendText("Something went wrong, please try again later")
		}
	}()

	logger.InfoCF("command", "Executing command", map[string]interface{}{
		"command": prop.Name,
		"channel": env.Channel,
		"chat":    env.ChatID,
		"sender":  env.SenderID,
		"args":    utils.Truncate(strings.Join(env.Args, " "), 100),
	})

	reply, err := cmd.Execute(ctx, env)
	if err != nil {
		logger.ErrorCF("command", "Command failed", map[string]interface{}{
			"command": prop.Name,
			"user":    env.UserKey(),
			"error":   err.Error(),
		})
		return message.New().AppendText("Something went wrong, please try again later")
	}

	if reply != nil && !reply.Usable() {
		return nil
	}
	return reply
}

func (d *Dispatcher) stripPrefix(text string) (string, bool) {
	for _, prefix := range d.prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(text, prefix)), true
		}
	}
	return "", false
}
