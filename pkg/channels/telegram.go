package channels

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/utils"
)

// TelegramChannel bridges Telegram chats through long polling.
type TelegramChannel struct {
	*BaseChannel
	config   config.TelegramConfig
	bot      *tgbotapi.BotAPI
	ctx      context.Context
	cancel   context.CancelFunc
	mediaDir string
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus, dataDir string) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token not configured")
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		config:      cfg,
		mediaDir:    filepath.Join(dataDir, "media", "telegram"),
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(c.config.Token))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	c.bot = bot
	c.ctx, c.cancel = context.WithCancel(ctx)

	logger.InfoCF("telegram", "Telegram channel started", map[string]interface{}{
		"username": bot.Self.UserName,
	})

	go c.pollUpdates()

	c.setRunning(true)
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram channel")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

func (c *TelegramChannel) pollUpdates() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	for {
		select {
		case <-c.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			go c.handleMessage(update.Message)
		}
	}
}

func (c *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message ignored (sender not allowed)", map[string]interface{}{
			"sender": senderID,
		})
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	receipt := message.Receipt{
		Platform:  "telegram",
		MessageID: strconv.Itoa(msg.MessageID),
		From:      msg.From.ID,
		To:        msg.Chat.ID,
		Time:      int64(msg.Date),
	}

	w := c.toWrapper(msg, receipt)
	if w.IsEmpty() && w.Usable() {
		return
	}

	senderName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if msg.From.UserName != "" {
		senderName = msg.From.UserName
	}

	logger.InfoCF("telegram", "Received message", map[string]interface{}{
		"sender":  senderID,
		"chat_id": chatID,
		"preview": utils.Truncate(w.PlainText(), 100),
	})

	c.HandleInbound(senderID, senderName, chatID, w, map[string]string{
		"message_id": receipt.MessageID,
	})
}

// toWrapper maps one Telegram message onto a wrapper: text and caption,
// text mentions, the largest photo size, and voice notes. Anything else
// (stickers, polls, locations) is skipped; if everything was skipped the
// wrapper comes back unusable.
func (c *TelegramChannel) toWrapper(msg *tgbotapi.Message, receipt message.Receipt) *message.Wrapper {
	w := message.NewWithReceipt(receipt)
	native := 0

	appendText := func(text string, entities []tgbotapi.MessageEntity) {
		if text == "" {
			return
		}
		native++
		cursor := 0
		runes := []rune(text)
		for _, ent := range entities {
			if ent.Type != "text_mention" || ent.User == nil {
				continue
			}
			if ent.Offset > cursor {
				w.AppendText(string(runes[cursor:ent.Offset]))
			}
			w.Append(message.At{Target: ent.User.ID, Name: ent.User.FirstName})
			cursor = ent.Offset + ent.Length
		}
		if cursor < len(runes) {
			w.AppendText(string(runes[cursor:]))
		}
	}

	appendText(msg.Text, msg.Entities)
	appendText(msg.Caption, msg.CaptionEntities)

	if len(msg.Photo) > 0 {
		native++
		largest := msg.Photo[len(msg.Photo)-1]
		if url, err := c.bot.GetFileDirectURL(largest.FileID); err == nil {
			if img, imgErr := message.URLImage(url); imgErr == nil {
				w.Append(img)
			}
		} else {
			logger.WarnCF("telegram", "Failed to resolve photo URL", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if msg.Voice != nil {
		native++
		if url, err := c.bot.GetFileDirectURL(msg.Voice.FileID); err == nil {
			local := utils.DownloadFile(url, msg.Voice.FileID+".ogg", utils.DownloadOptions{
				LoggerPrefix: "telegram",
				LocalDir:     c.mediaDir,
			})
			if local != "" {
				w.Append(message.Voice{Path: local})
			}
		}
	}

	if msg.Sticker != nil || msg.Animation != nil || msg.Location != nil || msg.Poll != nil {
		native++
	}

	if native > 0 && w.IsEmpty() {
		w.SetUsable(false)
	}
	return w
}

// Send renders a wrapper into at most one text message, plus one message
// per image and voice element. Nudges have no Telegram equivalent and are
// dropped with a warning.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() || c.bot == nil {
		return fmt.Errorf("telegram channel not running")
	}
	if msg.Message == nil || !msg.Message.Usable() {
		return nil
	}

	chatID, err := strconv.ParseInt(strings.TrimPrefix(msg.ChatID, "private:"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chatID for Telegram: %s", msg.ChatID)
	}

	var text strings.Builder
	var images []message.Image
	var voices []message.Voice

	for _, elem := range msg.Message.Elements() {
		switch e := elem.(type) {
		case message.Text:
			text.WriteString(e.Content)
		case message.At:
			text.WriteString(e.PlainText())
		case message.Card:
			text.WriteString("[card]")
		case message.Image:
			images = append(images, e)
		case message.Voice:
			voices = append(voices, e)
		case message.Nudge:
			logger.WarnC("telegram", "Nudge element has no Telegram mapping, dropping")
		default:
			logger.WarnCF("telegram", "Unsupported element, skipping", map[string]interface{}{
				"element": fmt.Sprintf("%T", elem),
			})
		}
	}

	caption := strings.TrimSpace(text.String())

	if len(images) > 0 {
		// Text rides along as the first photo's caption to keep one
		// logical message on screen.
		for i, img := range images {
			file, err := telegramImageFile(img)
			if err != nil {
				logger.WarnCF("telegram", "Failed to convert image, degrading to text", map[string]interface{}{
					"error": err.Error(),
				})
				if caption == "" {
					caption = img.PlainText()
				} else {
					caption += " " + img.PlainText()
				}
				continue
			}
			photo := tgbotapi.NewPhoto(chatID, file)
			if i == 0 && caption != "" {
				photo.Caption = caption
				caption = ""
			}
			if _, err := c.bot.Send(photo); err != nil {
				return fmt.Errorf("failed to send Telegram photo: %w", err)
			}
		}
	}

	if caption != "" {
		reply := tgbotapi.NewMessage(chatID, caption)
		if _, err := c.bot.Send(reply); err != nil {
			return fmt.Errorf("failed to send Telegram message: %w", err)
		}
	}

	for _, v := range voices {
		voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(v.Path))
		if _, err := c.bot.Send(voice); err != nil {
			return fmt.Errorf("failed to send Telegram voice: %w", err)
		}
	}

	return nil
}

func telegramImageFile(img message.Image) (tgbotapi.RequestFileData, error) {
	switch {
	case img.URL != "":
		return tgbotapi.FileURL(img.URL), nil
	case img.Path != "":
		return tgbotapi.FilePath(img.Path), nil
	case img.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image: %w", err)
		}
		return tgbotapi.FileBytes{Name: "image", Bytes: data}, nil
	}
	return nil, fmt.Errorf("image has no source")
}
