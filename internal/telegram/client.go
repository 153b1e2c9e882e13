// Package telegram provides the MTProto user client used by the crawler.
package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/tg"

	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
)

// Errors returned by Client.
var (
	ErrNotAuthorized   = errors.New("telegram client not authorized")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotChannel      = errors.New("not a channel")
	ErrStorageNotFound = errors.New("storage channel not found in dialogs")
)

// MaxHistoryLimit is the largest page MessagesGetHistory returns.
const MaxHistoryLimit = 100

// Client wraps gotgproto client and provides high-level telegram operations.
// It reaches the protocol client through the Manager, so it survives re-login.
type Client struct {
	manager *Manager
	pacer   *Pacer
	log     *logger.Logger

	storageMu   sync.Mutex
	storagePeer map[int64]*tg.InputPeerChannel
}

// NewClient creates a new telegram client wrapper using the Manager.
func NewClient(manager *Manager) *Client {
	return &Client{
		manager:     manager,
		pacer:       DefaultPacer(),
		log:         logger.Get(),
		storagePeer: make(map[int64]*tg.InputPeerChannel),
	}
}

// Close stops the client via the manager.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// GetStatus returns the current status of the telegram client.
func (c *Client) GetStatus() Status {
	return c.manager.GetStatus()
}

// StartQR starts the QR login flow effectively proxying to the manager.
func (c *Client) StartQR(ctx context.Context, onQRCode func(url string)) error {
	return c.manager.StartQR(ctx, onQRCode)
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (c *Client) IsQRInProgress() bool {
	return c.manager.IsQRInProgress()
}

// CancelQR cancels any ongoing QR login flow.
func (c *Client) CancelQR() {
	c.manager.CancelQR()
}

func (c *Client) getProto() (*gotgproto.Client, error) {
	proto := c.manager.GetClient()
	if proto == nil {
		return nil, ErrNotAuthorized
	}
	return proto, nil
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	proto, err := c.getProto()
	if err != nil {
		return nil, err
	}
	return proto.API(), nil
}

// wait paces the next request and returns the api handle.
func (c *Client) wait(ctx context.Context) (*tg.Client, error) {
	api, err := c.API()
	if err != nil {
		return nil, err
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return api, nil
}

// noteFlood extends the limiter when err is a FLOOD_WAIT.
func (c *Client) noteFlood(err error) {
	if wait := FloodWaitSeconds(err); wait > 0 {
		c.log.Warn().Int("wait_seconds", wait).Msg("telegram: FLOOD_WAIT detected, pausing requests")
		c.pacer.Pause(time.Duration(wait) * time.Second)
	}
}

// ResolveChannel resolves channel username to Channel info.
// username can be with or without @ prefix.
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimPrefix(username, "@")

	api, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("username", username).Msg("telegram: resolving channel username")
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.noteFlood(err)
		if strings.Contains(err.Error(), "USERNAME_NOT_OCCUPIED") || strings.Contains(err.Error(), "USERNAME_INVALID") {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
		}
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
	}

	ch, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotChannel, username)
	}

	out := &Channel{
		ID:           ch.ID,
		AccessHash:   ch.AccessHash,
		Username:     username,
		Title:        ch.Title,
		Participants: ch.ParticipantsCount,
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	full, err := api.ChannelsGetFullChannel(ctx, out.input())
	if err != nil {
		c.noteFlood(err)
		// the basic info is still usable without the full record
		c.log.Debug().Err(err).Str("username", username).Msg("telegram: full channel lookup failed")
		return out, nil
	}
	if chFull, ok := full.FullChat.(*tg.ChannelFull); ok {
		out.About = chFull.About
		if chFull.ParticipantsCount > 0 {
			out.Participants = chFull.ParticipantsCount
		}
	}
	return out, nil
}

// JoinChannel subscribes the user account to ch.
func (c *Client) JoinChannel(ctx context.Context, ch *Channel) error {
	api, err := c.wait(ctx)
	if err != nil {
		return err
	}

	c.log.Info().Str("username", ch.Username).Int64("channel_id", ch.ID).Msg("telegram: joining channel")
	if _, err := api.ChannelsJoinChannel(ctx, ch.input()); err != nil {
		c.noteFlood(err)
		if strings.Contains(err.Error(), "USER_ALREADY_PARTICIPANT") {
			return nil
		}
		return fmt.Errorf("join channel %s: %w", ch.Username, err)
	}
	return nil
}

// History returns posts newer than minID, oldest first.
// limit is capped at MaxHistoryLimit.
func (c *Client) History(ctx context.Context, ch *Channel, minID int, limit int) ([]Message, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	api, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Int64("channel_id", ch.ID).Int("min_id", minID).Int("limit", limit).Msg("telegram: calling MessagesGetHistory API")
	history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  ch.peer(),
		MinID: minID,
		Limit: limit,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get history: %w", err)
	}

	messages := extractMessages(history, ch.ID)
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

// ForwardToStorage copies post msgID of ch into the storage channel and
// returns the id of the copy. storageID may be in Bot API form.
func (c *Client) ForwardToStorage(ctx context.Context, ch *Channel, msgID int, storageID int64) (int64, error) {
	to, err := c.storage(ctx, storageID)
	if err != nil {
		return 0, err
	}

	api, err := c.wait(ctx)
	if err != nil {
		return 0, err
	}

	randomID := randomInt64()
	updates, err := api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: ch.peer(),
		ID:       []int{msgID},
		RandomID: []int64{randomID},
		ToPeer:   to,
	})
	if err != nil {
		c.noteFlood(err)
		return 0, fmt.Errorf("forward message %d from %s: %w", msgID, ch.Username, err)
	}

	id, ok := forwardedID(updates, randomID)
	if !ok {
		return 0, fmt.Errorf("forward message %d from %s: no message id in updates", msgID, ch.Username)
	}
	return int64(id), nil
}

// storage finds the storage channel's access hash among the account's
// dialogs and caches it.
func (c *Client) storage(ctx context.Context, storageID int64) (*tg.InputPeerChannel, error) {
	bare := BareChannelID(storageID)

	c.storageMu.Lock()
	defer c.storageMu.Unlock()
	if peer, ok := c.storagePeer[bare]; ok {
		return peer, nil
	}

	api, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}
	dialogs, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      MaxHistoryLimit,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get dialogs: %w", err)
	}

	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == bare {
			peer := &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
			c.storagePeer[bare] = peer
			return peer, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrStorageNotFound, storageID)
}

func (ch *Channel) input() *tg.InputChannel {
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

func (ch *Channel) peer() *tg.InputPeerChannel {
	return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

// extractMessages converts telegram message response to our Message type
func extractMessages(messagesClass tg.MessagesMessagesClass, channelID int64) []Message {
	var raw []tg.MessageClass
	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	}

	var messages []Message
	for _, msg := range raw {
		if m := parseMessage(msg, channelID); m != nil {
			messages = append(messages, *m)
		}
	}
	return messages
}

// parseMessage converts a single telegram message; service messages are dropped.
func parseMessage(msg tg.MessageClass, channelID int64) *Message {
	m, ok := msg.(*tg.Message)
	if !ok {
		return nil
	}
	return &Message{
		ID:        m.ID,
		ChannelID: channelID,
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0),
		MediaKind: MediaKindOf(m.Media),
		Views:     m.Views,
	}
}

// MediaKindOf maps attached media to a MediaKind. Media without a stored
// kind (web pages, polls, geo) counts as text.
func MediaKindOf(media tg.MessageMediaClass) models.MediaKind {
	switch md := media.(type) {
	case *tg.MessageMediaPhoto:
		return models.MediaPhoto
	case *tg.MessageMediaDocument:
		doc, ok := md.Document.(*tg.Document)
		if !ok {
			return models.MediaDocument
		}
		return documentKind(doc.Attributes)
	default:
		return models.MediaText
	}
}

func documentKind(attrs []tg.DocumentAttributeClass) models.MediaKind {
	var video, animated bool
	for _, attr := range attrs {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return models.MediaSticker
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return models.MediaVoice
			}
			return models.MediaAudio
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeVideo:
			video = true
		}
	}
	switch {
	case animated:
		return models.MediaAnimation
	case video:
		return models.MediaVideo
	default:
		return models.MediaDocument
	}
}

// forwardedID finds the id assigned to the message sent with randomID.
func forwardedID(updates tg.UpdatesClass, randomID int64) (int, bool) {
	var list []tg.UpdateClass
	switch u := updates.(type) {
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	case *tg.UpdateShort:
		list = []tg.UpdateClass{u.Update}
	}

	fallback, found := 0, false
	for _, upd := range list {
		switch v := upd.(type) {
		case *tg.UpdateMessageID:
			if v.RandomID == randomID {
				return v.ID, true
			}
		case *tg.UpdateNewChannelMessage:
			if m, ok := v.Message.(*tg.Message); ok && !found {
				fallback, found = m.ID, true
			}
		}
	}
	return fallback, found
}

func randomInt64() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// checkFloodWait checks if error is a FLOOD_WAIT error and returns wait seconds
func FloodWaitSeconds(err error) int {
	if err == nil {
		return 0
	}

	// gotd errors are wrapped; the rpc text is the stable part,
	// e.g. "rpc error code 420: FLOOD_WAIT_15"
	str := err.Error()
	parts := strings.SplitN(str, "FLOOD_WAIT_", 2)
	if len(parts) < 2 {
		return 0
	}
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}
