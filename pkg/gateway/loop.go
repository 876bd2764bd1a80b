package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/command"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/session"
)

// Loop is the routing core: it consumes inbound messages from the bus,
// offers each one to an open conversation session first, then to the
// command dispatcher, and publishes whatever reply comes back.
type Loop struct {
	bus        *bus.MessageBus
	dispatcher *command.Dispatcher
	sessions   *session.Manager
	running    atomic.Bool
}

func NewLoop(messageBus *bus.MessageBus, dispatcher *command.Dispatcher, sessions *session.Manager) *Loop {
	return &Loop{
		bus:        messageBus,
		dispatcher: dispatcher,
		sessions:   sessions,
	}
}

func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	logger.InfoC("gateway", "Gateway loop started")

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, ok := l.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}

			// Each event gets its own goroutine; session delivery is
			// serialized per identity inside the session manager.
			go l.handleInbound(ctx, msg)
		}
	}

	return nil
}

func (l *Loop) Stop() {
	l.running.Store(false)
}

func (l *Loop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("gateway", "Panic while handling inbound message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"panic":   fmt.Sprintf("%v", r),
			})
		}
	}()

	if msg.Message == nil {
		return
	}

	// An open conversation session owns all traffic from its identity
	// until it expires or completes.
	identity := session.Identity{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
	}
	if l.sessions.Dispatch(ctx, identity, msg.Message) {
		return
	}

	reply := l.dispatcher.Dispatch(ctx, msg)
	if reply == nil {
		return
	}

	l.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Message: reply,
	})
}
