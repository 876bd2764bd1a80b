package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/utils"
)

var discordMentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// DiscordChannel bridges Discord guild and DM text channels.
type DiscordChannel struct {
	*BaseChannel
	config  config.DiscordConfig
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("discord token not configured")
	}
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", messageBus, cfg.AllowFrom),
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + strings.TrimSpace(c.config.Token))
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}

	c.session = session
	c.setRunning(true)
	logger.InfoC("discord", "Discord channel started")
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord channel")
	c.setRunning(false)
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message ignored (sender not allowed)", map[string]interface{}{
			"sender": m.Author.ID,
		})
		return
	}

	from, _ := strconv.ParseInt(m.Author.ID, 10, 64)
	to, _ := strconv.ParseInt(m.ChannelID, 10, 64)
	receipt := message.Receipt{
		Platform:  "discord",
		MessageID: m.ID,
		From:      from,
		To:        to,
		Time:      m.Timestamp.Unix(),
	}

	w := c.toWrapper(m.Message, receipt)
	if w.IsEmpty() && w.Usable() {
		return
	}

	logger.InfoCF("discord", "Received message", map[string]interface{}{
		"sender":  m.Author.ID,
		"chat_id": m.ChannelID,
		"preview": utils.Truncate(w.PlainText(), 100),
	})

	c.HandleInbound(m.Author.ID, m.Author.Username, m.ChannelID, w, map[string]string{
		"message_id": m.ID,
	})
}

// toWrapper maps content text (with <@id> mention tokens turned into At
// elements), image attachments and image embeds. Voice notes and other
// attachment types are skipped.
func (c *DiscordChannel) toWrapper(m *discordgo.Message, receipt message.Receipt) *message.Wrapper {
	w := message.NewWithReceipt(receipt)
	native := 0

	if m.Content != "" {
		native++
		appendDiscordContent(w, m.Content, m.Mentions)
	}

	for _, att := range m.Attachments {
		native++
		if !strings.HasPrefix(att.ContentType, "image/") {
			logger.DebugCF("discord", "Skipping non-image attachment", map[string]interface{}{
				"content_type": att.ContentType,
			})
			continue
		}
		if img, err := message.URLImage(att.URL); err == nil {
			w.Append(img)
		}
	}

	if native > 0 && w.IsEmpty() {
		w.SetUsable(false)
	}
	return w
}

func appendDiscordContent(w *message.Wrapper, content string, mentions []*discordgo.User) {
	names := make(map[string]string, len(mentions))
	for _, u := range mentions {
		names[u.ID] = u.Username
	}

	cursor := 0
	for _, m := range discordMentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if m[0] > cursor {
			w.AppendText(content[cursor:m[0]])
		}
		id := content[m[2]:m[3]]
		target, err := strconv.ParseInt(id, 10, 64)
		if err == nil {
			w.Append(message.At{Target: target, Name: names[id]})
		}
		cursor = m[1]
	}
	if cursor < len(content) {
		w.AppendText(content[cursor:])
	}
}

// Send renders a wrapper into one Discord message. Voice has no mapping in
// a text channel, so a wrapper carrying voice fails with
// ErrUnsupportedTarget rather than being silently mangled.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() || c.session == nil {
		return fmt.Errorf("discord channel not running")
	}
	if msg.Message == nil || !msg.Message.Usable() {
		return nil
	}

	if _, ok := message.Find[message.Voice](msg.Message); ok {
		return fmt.Errorf("voice element on discord: %w", ErrUnsupportedTarget)
	}

	var sb strings.Builder
	var files []*discordgo.File

	for _, elem := range msg.Message.Elements() {
		switch e := elem.(type) {
		case message.Text:
			sb.WriteString(e.Content)
		case message.At:
			sb.WriteString("<@" + strconv.FormatInt(e.Target, 10) + ">")
		case message.Card:
			sb.WriteString("[card]")
		case message.Nudge:
			logger.WarnC("discord", "Nudge element has no Discord mapping, dropping")
		case message.Image:
			if e.URL != "" {
				// Discord unfurls bare links, no upload needed.
				sb.WriteString("\n" + e.URL)
				continue
			}
			file, err := discordImageFile(e)
			if err != nil {
				logger.WarnCF("discord", "Failed to convert image, degrading to text", map[string]interface{}{
					"error": err.Error(),
				})
				sb.WriteString(e.PlainText())
				continue
			}
			files = append(files, file)
		default:
			logger.WarnCF("discord", "Unsupported element, skipping", map[string]interface{}{
				"element": fmt.Sprintf("%T", elem),
			})
		}
	}

	content := strings.TrimSpace(sb.String())
	if content == "" && len(files) == 0 {
		return nil
	}

	_, err := c.session.ChannelMessageSendComplex(msg.ChatID, &discordgo.MessageSend{
		Content: content,
		Files:   files,
	})
	if err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}
	return nil
}

func discordImageFile(img message.Image) (*discordgo.File, error) {
	switch {
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return nil, fmt.Errorf("read image file: %w", err)
		}
		return &discordgo.File{Name: "image.png", Reader: bytes.NewReader(data)}, nil
	case img.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image: %w", err)
		}
		return &discordgo.File{Name: "image.png", Reader: bytes.NewReader(data)}, nil
	}
	return nil, fmt.Errorf("image has no source")
}
