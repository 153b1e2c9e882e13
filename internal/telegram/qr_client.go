package telegram

import (
	"errors"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/blockedby/chansearch/internal/config"
)

// loginDevice is what the phone lists under Settings > Devices after a scan.
var loginDevice = telegram.DeviceConfig{
	DeviceModel:   "chansearch crawler",
	SystemVersion: "linux",
	AppVersion:    "1.0",
}

var errNoCredentials = errors.New("API_ID and API_HASH are required for login")

// QRClientBundle is a bare gotd client for one QR login attempt. Storage
// holds the authorized session once the scan succeeds; Dispatcher delivers
// the login-token update.
type QRClientBundle struct {
	Client     *telegram.Client
	Dispatcher *tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewQRClient builds a login client with in-memory session storage, so a
// failed or canceled attempt leaves the session store untouched.
func NewQRClient(cfg *config.Config) (*QRClientBundle, error) {
	if cfg == nil || !cfg.HasUserClient() {
		return nil, errNoCredentials
	}

	b := &QRClientBundle{Storage: &session.StorageMemory{}}
	d := tg.NewUpdateDispatcher()
	b.Dispatcher = &d
	b.Client = telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
		SessionStorage: b.Storage,
		UpdateHandler:  b.Dispatcher,
		Device:         loginDevice,
	})
	return b, nil
}
