package channels

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
)

// ErrUnsupportedTarget reports that a destination cannot carry an element
// the wrapper requires (for example voice on a platform without audio
// uploads). Adapters return it instead of silently dropping the element.
var ErrUnsupportedTarget = errors.New("unsupported target for message element")

// Channel is one platform adapter: it converts between wrappers and the
// platform's native message format and owns all I/O with that platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the state every adapter shares: the bus handle, the
// sender allow-list and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowed,
	}
}

func (b *BaseChannel) Name() string { return b.name }

// IsAllowed reports whether a sender passes the allow-list. An empty list
// allows everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	_, ok := b.allowFrom[senderID]
	return ok
}

func (b *BaseChannel) IsRunning() bool { return b.running.Load() }

func (b *BaseChannel) setRunning(running bool) { b.running.Store(running) }

// HandleInbound publishes a converted wrapper to the bus. Wrappers that
// mapped to zero elements go through with usable=false so the gateway can
// still observe them without command-matching empty text.
func (b *BaseChannel) HandleInbound(senderID, senderName, chatID string, w *message.Wrapper, metadata map[string]string) {
	if w == nil {
		return
	}

	logger.DebugCF(b.name, "Forwarding inbound message to bus", map[string]interface{}{
		"sender":  senderID,
		"chat_id": chatID,
		"usable":  w.Usable(),
	})

	b.bus.PublishInbound(bus.InboundMessage{
		Channel:    b.name,
		SenderID:   senderID,
		SenderName: senderName,
		ChatID:     chatID,
		Message:    w,
		Metadata:   metadata,
	})
}
