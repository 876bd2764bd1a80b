package channels

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
)

// ConsoleChannel turns the local terminal into a chat: every line typed is
// an inbound message from the operator, every outbound wrapper is printed.
// Useful for trying commands without any platform credentials.
type ConsoleChannel struct {
	*BaseChannel
	rl     *readline.Instance
	ctx    context.Context
	cancel context.CancelFunc
}

func NewConsoleChannel(messageBus *bus.MessageBus) (*ConsoleChannel, error) {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", messageBus, nil),
	}, nil
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "comet> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to init readline: %w", err)
	}
	c.rl = rl
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.readLoop()

	c.setRunning(true)
	logger.InfoC("console", "Console channel started")
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) readLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				logger.InfoC("console", "Console closed")
				return
			}
			logger.ErrorCF("console", "Readline error", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		w := message.NewWithReceipt(message.Receipt{
			Platform: "console",
			Time:     time.Now().Unix(),
		}).AppendText(line)

		c.HandleInbound("operator", "operator", "console", w, nil)
	}
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.Message == nil || !msg.Message.Usable() {
		return nil
	}
	text := msg.Message.PlainText()
	if c.rl != nil {
		fmt.Fprintln(c.rl.Stdout(), text)
	} else {
		fmt.Println(text)
	}
	return nil
}
