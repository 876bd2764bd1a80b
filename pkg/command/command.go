package command

import (
	"context"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/session"
	"github.com/cometbot/comet/pkg/user"
)

// Property is the immutable descriptor of a command. One instance is shared
// by every invocation; nothing may mutate it after registration.
type Property struct {
	Name    string
	Aliases []string
	Summary string
	Help    string

	// Cost is deducted from the invoking user's coin balance before the
	// handler runs. Zero means free.
	Cost int64
}

// Env carries everything a handler may need for one invocation: the sender
// and subject identity, the parsed wrapper, the arguments after the command
// name, and handles to process-wide state.
type Env struct {
	Channel    string
	ChatID     string
	SenderID   string
	SenderName string
	Message    *message.Wrapper
	Args       []string

	User     user.User
	Users    *user.Store
	Sessions *session.Manager
	Registry *Registry
	Bus      *bus.MessageBus
}

// Identity returns the session identity of the invoking sender.
func (e *Env) Identity() session.Identity {
	return session.Identity{
		Channel:  e.Channel,
		ChatID:   e.ChatID,
		SenderID: e.SenderID,
	}
}

// UserKey is the account-store key for the invoking sender.
func (e *Env) UserKey() string {
	return e.Channel + ":" + e.SenderID
}

// Reply publishes a wrapper back to the chat this invocation came from.
// Handlers that answer asynchronously (session continuations, spawned
// lookups) use this instead of the synchronous return value.
func (e *Env) Reply(w *message.Wrapper) {
	if w == nil || !w.Usable() {
		return
	}
	e.Bus.PublishOutbound(bus.OutboundMessage{
		Channel: e.Channel,
		ChatID:  e.ChatID,
		Message: w,
	})
}

// Command is one registered command. Execute returns the reply wrapper, or
// nil for no reply.
type Command interface {
	Property() Property
	Execute(ctx context.Context, env *Env) (*message.Wrapper, error)
}
