package channels

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cometbot/comet/pkg/bus"
	"github.com/cometbot/comet/pkg/config"
	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
	"github.com/cometbot/comet/pkg/utils"
)

// maxImagesPerMessage is the platform cap; images beyond it are dropped
// with a warning instead of failing the whole send.
const maxImagesPerMessage = 9

// sendTimeoutWarnStreak is how many consecutive send timeouts it takes
// before the log level escalates from debug to warn.
const sendTimeoutWarnStreak = 3

// OneBotChannel speaks the OneBot v11 websocket protocol, the wire format
// used by QQ protocol bridges.
type OneBotChannel struct {
	*BaseChannel
	config      config.OneBotConfig
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	dedup       map[string]struct{}
	dedupRing   []string
	dedupIdx    int
	mu          sync.Mutex
	writeMu     sync.Mutex
	apiWaitMu   sync.Mutex
	echoCounter int64
	apiWaiters  map[string]chan oneBotAPIResponse
	mediaDir    string

	sendTimeouts atomic.Int64
}

type oneBotRawEvent struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	SubType       string          `json:"sub_type"`
	MessageID     json.RawMessage `json:"message_id"`
	UserID        json.RawMessage `json:"user_id"`
	GroupID       json.RawMessage `json:"group_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"`
	Sender        json.RawMessage `json:"sender"`
	SelfID        json.RawMessage `json:"self_id"`
	Time          json.RawMessage `json:"time"`
	MetaEventType string          `json:"meta_event_type"`
	Echo          string          `json:"echo"`
}

type oneBotSender struct {
	UserID   json.RawMessage `json:"user_id"`
	Nickname string          `json:"nickname"`
	Card     string          `json:"card"`
}

type oneBotAPIRequest struct {
	Action string      `json:"action"`
	Params interface{} `json:"params"`
	Echo   string      `json:"echo,omitempty"`
}

type oneBotAPIResponse struct {
	Status  string          `json:"status"`
	RetCode json.RawMessage `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Echo    string          `json:"echo"`
}

type oneBotSendPrivateMsgParams struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

type oneBotSendGroupMsgParams struct {
	GroupID int64  `json:"group_id"`
	Message string `json:"message"`
}

func NewOneBotChannel(cfg config.OneBotConfig, messageBus *bus.MessageBus, dataDir string) (*OneBotChannel, error) {
	base := NewBaseChannel("onebot", messageBus, cfg.AllowFrom)

	const dedupSize = 1024
	return &OneBotChannel{
		BaseChannel: base,
		config:      cfg,
		dedup:       make(map[string]struct{}, dedupSize),
		dedupRing:   make([]string, dedupSize),
		apiWaiters:  make(map[string]chan oneBotAPIResponse),
		mediaDir:    filepath.Join(dataDir, "media", "onebot"),
	}, nil
}

func (c *OneBotChannel) Start(ctx context.Context) error {
	if c.config.WSUrl == "" {
		return fmt.Errorf("OneBot ws_url not configured")
	}

	logger.InfoCF("onebot", "Starting OneBot channel", map[string]interface{}{
		"ws_url": c.config.WSUrl,
	})

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		logger.WarnCF("onebot", "Initial connection failed, will retry in background", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		go c.listen()
	}

	if c.config.ReconnectInterval > 0 {
		go c.reconnectLoop()
	} else if c.conn == nil {
		return fmt.Errorf("failed to connect to OneBot and reconnect is disabled")
	}

	c.setRunning(true)
	return nil
}

func (c *OneBotChannel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := make(map[string][]string)
	if c.config.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + c.config.AccessToken}
	}

	conn, _, err := dialer.Dial(c.config.WSUrl, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	logger.InfoC("onebot", "WebSocket connected")
	return nil
}

func (c *OneBotChannel) reconnectLoop() {
	interval := time.Duration(c.config.ReconnectInterval) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(interval):
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				logger.InfoC("onebot", "Attempting to reconnect...")
				if err := c.connect(); err != nil {
					logger.ErrorCF("onebot", "Reconnect failed", map[string]interface{}{
						"error": err.Error(),
					})
				} else {
					go c.listen()
				}
			}
		}
	}
}

func (c *OneBotChannel) Stop(ctx context.Context) error {
	logger.InfoC("onebot", "Stopping OneBot channel")
	c.setRunning(false)

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	return nil
}

func (c *OneBotChannel) listen() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				logger.WarnC("onebot", "WebSocket connection is nil, listener exiting")
				return
			}

			_, payload, err := conn.ReadMessage()
			if err != nil {
				logger.ErrorCF("onebot", "WebSocket read error", map[string]interface{}{
					"error": err.Error(),
				})
				c.mu.Lock()
				if c.conn != nil {
					c.conn.Close()
					c.conn = nil
				}
				c.mu.Unlock()
				return
			}

			var raw oneBotRawEvent
			if err := json.Unmarshal(payload, &raw); err != nil {
				logger.WarnCF("onebot", "Failed to unmarshal raw event", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}

			if raw.Echo != "" {
				c.dispatchAPIResponse(raw, payload)
				continue
			}

			// Conversion may download attachments; one slow image must
			// not stall unrelated events.
			rawCopy := raw
			go c.handleRawEvent(&rawCopy)
		}
	}
}

func (c *OneBotChannel) dispatchAPIResponse(raw oneBotRawEvent, payload []byte) {
	var resp oneBotAPIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		resp = oneBotAPIResponse{Echo: raw.Echo}
	}
	if resp.Echo == "" {
		resp.Echo = raw.Echo
	}

	c.apiWaitMu.Lock()
	waiter := c.apiWaiters[resp.Echo]
	c.apiWaitMu.Unlock()
	if waiter == nil {
		return
	}

	select {
	case waiter <- resp:
	default:
	}
}

func (c *OneBotChannel) nextEcho(prefix string) string {
	c.apiWaitMu.Lock()
	c.echoCounter++
	echo := fmt.Sprintf("%s_%d", prefix, c.echoCounter)
	c.apiWaitMu.Unlock()
	return echo
}

// callAPI issues an OneBot API request and waits for its echo-correlated
// response.
func (c *OneBotChannel) callAPI(action string, params interface{}, timeout time.Duration) (*oneBotAPIResponse, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("OneBot WebSocket not connected")
	}

	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	echo := c.nextEcho("api")
	waiter := make(chan oneBotAPIResponse, 1)

	c.apiWaitMu.Lock()
	c.apiWaiters[echo] = waiter
	c.apiWaitMu.Unlock()

	defer func() {
		c.apiWaitMu.Lock()
		delete(c.apiWaiters, echo)
		c.apiWaitMu.Unlock()
	}()

	payload, err := json.Marshal(oneBotAPIRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OneBot API request: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to write OneBot API request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var done <-chan struct{}
	if c.ctx != nil {
		done = c.ctx.Done()
	}

	select {
	case resp := <-waiter:
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("OneBot API request timeout: action=%s", action)
	case <-done:
		return nil, fmt.Errorf("OneBot channel stopped")
	}
}

// Send converts the wrapper to a CQ-code message and delivers it to the
// chat named by msg.ChatID ("group:<id>" or "private:<id>").
func (c *OneBotChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("OneBot channel not running")
	}
	if msg.Message == nil || !msg.Message.Usable() {
		return nil
	}

	native, err := c.buildNativeMessage(msg.Message)
	if err != nil {
		return err
	}
	if native == "" {
		return nil
	}

	action, params, err := buildSendRequest(msg.ChatID, native)
	if err != nil {
		return err
	}

	resp, err := c.callAPI(action, params, 5*time.Second)
	if err != nil {
		// A response timeout is not a delivery failure; most bridges
		// deliver before answering. A streak of them is worth noticing.
		c.noteSendTimeout(err)
		return nil
	}
	c.sendTimeouts.Store(0)

	if status := strings.ToLower(strings.TrimSpace(resp.Status)); status != "" && status != "ok" && status != "async" {
		return fmt.Errorf("OneBot send failed: status=%s message=%s", resp.Status, resp.Message)
	}
	return nil
}

// noteSendTimeout counts consecutive unanswered sends and escalates the
// log level once the streak suggests the bridge has stopped responding.
func (c *OneBotChannel) noteSendTimeout(err error) int64 {
	n := c.sendTimeouts.Add(1)
	fields := map[string]interface{}{
		"error":       err.Error(),
		"consecutive": n,
	}
	if n >= sendTimeoutWarnStreak {
		logger.WarnCF("onebot", "Repeated API response timeouts on send", fields)
	} else {
		logger.DebugCF("onebot", "No API response for send", fields)
	}
	return n
}

func buildSendRequest(chatID, native string) (string, interface{}, error) {
	if rest, ok := strings.CutPrefix(chatID, "group:"); ok {
		groupID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid group ID in chatID: %s", chatID)
		}
		return "send_group_msg", oneBotSendGroupMsgParams{GroupID: groupID, Message: native}, nil
	}

	rest := strings.TrimPrefix(chatID, "private:")
	userID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid chatID for OneBot: %s", chatID)
	}
	return "send_private_msg", oneBotSendPrivateMsgParams{UserID: userID, Message: native}, nil
}

// buildNativeMessage renders wrapper elements into a CQ-code string in
// insertion order. A failed image degrades to its text placeholder; a
// missing voice file fails the whole message since there is no sensible
// fallback for audio.
func (c *OneBotChannel) buildNativeMessage(w *message.Wrapper) (string, error) {
	var sb strings.Builder
	images := 0

	for _, elem := range w.Elements() {
		switch e := elem.(type) {
		case message.Text:
			sb.WriteString(escapeCQText(e.Content))

		case message.Image:
			if images >= maxImagesPerMessage {
				logger.WarnCF("onebot", "Image limit reached, dropping element", map[string]interface{}{
					"limit": maxImagesPerMessage,
				})
				continue
			}
			ref, err := c.resolveImage(e)
			if err != nil {
				logger.WarnCF("onebot", "Failed to convert image, degrading to text", map[string]interface{}{
					"error": err.Error(),
				})
				sb.WriteString(e.PlainText())
				continue
			}
			sb.WriteString("[CQ:image,file=" + escapeCQParam(ref) + "]")
			images++

		case message.At:
			sb.WriteString("[CQ:at,qq=" + strconv.FormatInt(e.Target, 10) + "]")

		case message.Card:
			sb.WriteString("[CQ:xml,data=" + escapeCQParam(e.Content) + "]")

		case message.Voice:
			if _, err := os.Stat(e.Path); err != nil {
				return "", fmt.Errorf("voice file missing: %s: %w", e.Path, err)
			}
			data, err := os.ReadFile(e.Path)
			if err != nil {
				return "", fmt.Errorf("failed to read voice file: %w", err)
			}
			sb.WriteString("[CQ:record,file=base64://" + base64.StdEncoding.EncodeToString(data) + "]")

		case message.Nudge:
			sb.WriteString("[CQ:poke,qq=" + strconv.FormatInt(e.Target, 10) + "]")

		default:
			logger.WarnCF("onebot", "Unsupported element, skipping", map[string]interface{}{
				"element": fmt.Sprintf("%T", elem),
			})
		}
	}

	return sb.String(), nil
}

// resolveImage turns the image's single source into an OneBot file
// reference. Local files are embedded as base64 so the bridge does not
// need filesystem access; URLs are passed through for the bridge to fetch.
func (c *OneBotChannel) resolveImage(img message.Image) (string, error) {
	switch {
	case img.URL != "":
		return img.URL, nil
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return "", fmt.Errorf("read image file: %w", err)
		}
		return "base64://" + base64.StdEncoding.EncodeToString(data), nil
	case img.Base64 != "":
		return "base64://" + img.Base64, nil
	}
	return "", fmt.Errorf("image has no source")
}

func (c *OneBotChannel) handleRawEvent(raw *oneBotRawEvent) {
	switch raw.PostType {
	case "message":
		c.handleMessageEvent(raw)
	case "meta_event":
		logger.DebugCF("onebot", "Meta event", map[string]interface{}{
			"meta_event_type": raw.MetaEventType,
		})
	default:
		logger.DebugCF("onebot", "Ignoring event", map[string]interface{}{
			"post_type": raw.PostType,
		})
	}
}

func (c *OneBotChannel) handleMessageEvent(raw *oneBotRawEvent) {
	userID, err := parseJSONInt64(raw.UserID)
	if err != nil {
		logger.WarnCF("onebot", "Failed to parse user_id", map[string]interface{}{
			"raw": string(raw.UserID),
		})
		return
	}

	groupID, _ := parseJSONInt64(raw.GroupID)
	ts, _ := parseJSONInt64(raw.Time)
	messageID := parseJSONString(raw.MessageID)

	if c.isDuplicate(messageID) {
		logger.DebugCF("onebot", "Duplicate message, skipping", map[string]interface{}{
			"message_id": messageID,
		})
		return
	}

	senderID := strconv.FormatInt(userID, 10)
	if !c.IsAllowed(senderID) {
		logger.DebugCF("onebot", "Message ignored (sender not allowed)", map[string]interface{}{
			"sender": senderID,
		})
		return
	}

	var chatID string
	switch raw.MessageType {
	case "private":
		chatID = "private:" + senderID
	case "group":
		groupIDStr := strconv.FormatInt(groupID, 10)
		if !c.isGroupAllowed(groupIDStr) {
			logger.DebugCF("onebot", "Group message ignored (group not allowed)", map[string]interface{}{
				"group": groupIDStr,
			})
			return
		}
		chatID = "group:" + groupIDStr
	default:
		logger.WarnCF("onebot", "Unknown message type, cannot route", map[string]interface{}{
			"type": raw.MessageType,
		})
		return
	}

	receipt := message.Receipt{
		Platform:  "onebot",
		MessageID: messageID,
		From:      userID,
		To:        groupID,
		Time:      ts,
	}

	w := c.toWrapper(raw.Message, raw.RawMessage, receipt)
	if w.IsEmpty() && strings.TrimSpace(raw.RawMessage) == "" {
		// Genuinely empty event, nothing to forward.
		return
	}

	var sender oneBotSender
	if len(raw.Sender) > 0 {
		if err := json.Unmarshal(raw.Sender, &sender); err != nil {
			logger.DebugCF("onebot", "Failed to parse sender", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	senderName := sender.Card
	if senderName == "" {
		senderName = sender.Nickname
	}

	logger.InfoCF("onebot", "Received message", map[string]interface{}{
		"type":       raw.MessageType,
		"sender":     senderID,
		"chat_id":    chatID,
		"message_id": messageID,
		"preview":    utils.Truncate(w.PlainText(), 100),
	})

	c.HandleInbound(senderID, senderName, chatID, w, map[string]string{
		"message_id": messageID,
	})
}

// toWrapper converts a native OneBot message (segment array or CQ-code
// string) to a wrapper. Unmappable segments are skipped; if nothing maps
// from a non-empty native message, the wrapper is marked unusable.
func (c *OneBotChannel) toWrapper(raw json.RawMessage, rawMessage string, receipt message.Receipt) *message.Wrapper {
	w := message.NewWithReceipt(receipt)
	total := 0

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		total = c.appendCQString(w, s)
	} else {
		var segments []oneBotSegment
		if err := json.Unmarshal(raw, &segments); err == nil {
			for _, seg := range segments {
				total++
				c.appendSegment(w, seg.Type, seg.Data)
			}
		} else if trimmed := strings.TrimSpace(rawMessage); trimmed != "" {
			total = c.appendCQString(w, trimmed)
		}
	}

	if total > 0 && w.IsEmpty() {
		w.SetUsable(false)
	}
	return w
}

type oneBotSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"-"`

	RawData json.RawMessage `json:"data"`
}

func (s *oneBotSegment) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Type = aux.Type
	s.Data = make(map[string]string, len(aux.Data))
	for k, v := range aux.Data {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			s.Data[k] = str
		} else {
			s.Data[k] = strings.Trim(string(v), `"`)
		}
	}
	return nil
}

// appendSegment maps one native segment onto the wrapper. Returns nothing;
// unknown types are logged and skipped so one exotic sticker cannot kill
// the event.
func (c *OneBotChannel) appendSegment(w *message.Wrapper, segType string, data map[string]string) {
	switch segType {
	case "text":
		if t := data["text"]; t != "" {
			w.AppendText(t)
		}
	case "at":
		qq, err := strconv.ParseInt(strings.TrimSpace(data["qq"]), 10, 64)
		if err == nil {
			w.Append(message.At{Target: qq})
		}
	case "image":
		img, err := inboundImage(data)
		if err != nil {
			logger.DebugCF("onebot", "Image segment without usable source", map[string]interface{}{
				"data": fmt.Sprintf("%v", data),
			})
			return
		}
		w.Append(img)
	case "record":
		if local := c.downloadVoice(data); local != "" {
			w.Append(message.Voice{Path: local})
		}
	case "xml", "json":
		if content := data["data"]; content != "" {
			w.Append(message.Card{Content: content})
		}
	case "poke":
		qq, err := strconv.ParseInt(strings.TrimSpace(data["qq"]), 10, 64)
		if err == nil {
			w.Append(message.Nudge{Target: qq})
		}
	default:
		logger.DebugCF("onebot", "Skipping unmappable segment", map[string]interface{}{
			"type": segType,
		})
	}
}

func inboundImage(data map[string]string) (message.Image, error) {
	if url := strings.TrimSpace(data["url"]); url != "" {
		return message.URLImage(url)
	}
	if p := strings.TrimSpace(data["path"]); p != "" {
		return message.FileImage(p)
	}
	if file := strings.TrimSpace(data["file"]); strings.HasPrefix(file, "base64://") {
		return message.Base64Image(strings.TrimPrefix(file, "base64://"))
	}
	return message.Image{}, fmt.Errorf("no image source in segment")
}

func (c *OneBotChannel) downloadVoice(data map[string]string) string {
	url := strings.TrimSpace(data["url"])
	if url == "" {
		return strings.TrimSpace(data["path"])
	}
	name := strings.TrimSpace(data["file"])
	if name == "" {
		name = filenameFromURL(url)
	}
	return utils.DownloadFile(url, name, utils.DownloadOptions{
		LoggerPrefix: "onebot",
		LocalDir:     c.mediaDir,
	})
}

func filenameFromURL(rawURL string) string {
	parsed, err := neturl.Parse(rawURL)
	if err != nil {
		return "file"
	}
	base := strings.TrimSpace(path.Base(parsed.Path))
	if base == "" || base == "." || base == "/" {
		return "file"
	}
	return base
}

// appendCQString parses CQ-code text into wrapper elements. Returns the
// number of native content units encountered (text runs count as one each).
func (c *OneBotChannel) appendCQString(w *message.Wrapper, content string) int {
	total := 0
	cursor := 0

	for _, m := range cqPattern.FindAllStringSubmatchIndex(content, -1) {
		if m[0] > cursor {
			if text := unescapeCQText(content[cursor:m[0]]); text != "" {
				w.AppendText(text)
				total++
			}
		}

		segType := content[m[2]:m[3]]
		params := ""
		if m[4] >= 0 {
			params = content[m[4]:m[5]]
		}
		total++
		c.appendSegment(w, segType, parseCQParams(params))
		cursor = m[1]
	}

	if cursor < len(content) {
		if text := unescapeCQText(content[cursor:]); text != "" {
			w.AppendText(text)
			total++
		}
	}
	return total
}

func parseCQParams(params string) map[string]string {
	result := make(map[string]string)
	for _, item := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = unescapeCQParam(value)
	}
	return result
}

func (c *OneBotChannel) isDuplicate(messageID string) bool {
	if messageID == "" || messageID == "0" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.dedup[messageID]; exists {
		return true
	}

	if old := c.dedupRing[c.dedupIdx]; old != "" {
		delete(c.dedup, old)
	}
	c.dedupRing[c.dedupIdx] = messageID
	c.dedup[messageID] = struct{}{}
	c.dedupIdx = (c.dedupIdx + 1) % len(c.dedupRing)

	return false
}

func (c *OneBotChannel) isGroupAllowed(groupID string) bool {
	if len(c.config.AllowGroups) == 0 {
		return true
	}
	for _, g := range c.config.AllowGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

func parseJSONInt64(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("cannot parse as int64: %s", string(raw))
}

func parseJSONString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
