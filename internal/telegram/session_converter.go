package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

var errNilSession = errors.New("session data is nil")

// ConvertToGotgprotoSession wraps a gotd session in the row format that
// gotgproto's SqlSession reads back on the next start.
func ConvertToGotgprotoSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errNilSession
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}
