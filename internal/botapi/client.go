// Package botapi adapts go-telegram-bot-api to the lookups used by the
// ingestion pipeline and maps Bot API failures to typed errors.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrChatNotFound is returned when the Bot API reports that a chat does not exist.
var ErrChatNotFound = errors.New("chat not found")

// RateLimitError carries the retry-after interval signalled by the Bot API.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Chat types accepted as channels.
const (
	ChatTypeChannel    = "channel"
	ChatTypeSupergroup = "supergroup"
	ChatTypeGroup      = "group"
)

// ChatInfo is the subset of a Bot API chat the pipeline stores.
type ChatInfo struct {
	ID          int64
	Type        string
	Title       string
	Username    string
	Description string
	// PhotoFileID is the big avatar file id, empty when the chat has no photo.
	PhotoFileID string
}

// IsChannelLike reports whether the chat is a channel or a group.
func (c *ChatInfo) IsChannelLike() bool {
	switch c.Type {
	case ChatTypeChannel, ChatTypeSupergroup, ChatTypeGroup:
		return true
	}
	return false
}

// api is the part of *tgbotapi.BotAPI the client uses.
type api interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMembersCount(config tgbotapi.ChatMemberCountConfig) (int, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client performs chat lookups through the Bot API.
type Client struct {
	api  api
	http *http.Client
}

// New wraps an authorised bot.
func New(bot *tgbotapi.BotAPI) *Client {
	return newClient(bot, &http.Client{Timeout: 60 * time.Second})
}

func newClient(a api, hc *http.Client) *Client {
	return &Client{api: a, http: hc}
}

func chatConfig(handle string) tgbotapi.ChatConfig {
	return tgbotapi.ChatConfig{SuperGroupUsername: "@" + strings.TrimPrefix(handle, "@")}
}

// GetChat looks up a public chat by handle.
func (c *Client) GetChat(ctx context.Context, handle string) (*ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: chatConfig(handle)})
	if err != nil {
		return nil, classify(err)
	}

	info := &ChatInfo{
		ID:          chat.ID,
		Type:        chat.Type,
		Title:       chat.Title,
		Username:    chat.UserName,
		Description: chat.Description,
	}
	if chat.Photo != nil {
		info.PhotoFileID = chat.Photo.BigFileID
	}
	return info, nil
}

// MemberCount returns the number of members of a public chat.
func (c *Client) MemberCount(ctx context.Context, handle string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.api.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{ChatConfig: chatConfig(handle)})
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// DownloadFile fetches a file by id and writes it to dest.
func (c *Client) DownloadFile(ctx context.Context, fileID, dest string) error {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return classify(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create avatar dir: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	return os.Rename(tmp, dest)
}

// notFoundMarkers are lowercase fragments of Bot API descriptions meaning the
// target does not exist.
var notFoundMarkers = []string{
	"chat not found",
	"user not found",
	"username_not_occupied",
	"username_invalid",
}

// classify maps Bot API errors to ErrChatNotFound or *RateLimitError.
// Anything else is returned unchanged.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.RetryAfter > 0 || apiErr.Code == http.StatusTooManyRequests {
		retry := time.Duration(apiErr.RetryAfter) * time.Second
		if retry <= 0 {
			retry = time.Second
		}
		return &RateLimitError{RetryAfter: retry}
	}
	msg := strings.ToLower(apiErr.Message)
	for _, marker := range notFoundMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrChatNotFound, apiErr.Message)
		}
	}
	return err
}

// IsRateLimited extracts the retry-after interval from err.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
