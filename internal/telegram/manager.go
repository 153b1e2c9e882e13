package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/config"
	"github.com/blockedby/chansearch/internal/logger"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// Errors returned by the login flows.
var (
	ErrAlreadyAuthorized = errors.New("already logged in")
	ErrQRInProgress      = errors.New("QR login already in progress")
)

// ClientFactory builds the crawler's protocol client from the session store.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// QRClientFactory builds the bare client used while logging in by QR code.
type QRClientFactory func(cfg *config.Config) (*QRClientBundle, error)

// Manager owns the crawler account: it restores the stored session, runs
// QR login when there is none and hands the live client to Client.
type Manager struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger

	mu     sync.RWMutex
	client *gotgproto.Client
	status Status

	clientFactory   ClientFactory
	qrClientFactory QRClientFactory

	qrMu         sync.Mutex
	qrInProgress atomic.Bool
	qrCancel     context.CancelFunc
}

// NewManager creates a manager over the session store db.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:              db,
		cfg:             cfg,
		log:             logger.Get().Component("telegram"),
		status:          StatusInitializing,
		clientFactory:   NewPersistentClient,
		qrClientFactory: NewQRClient,
	}
}

// SetClientFactory replaces the protocol client constructor.
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRClientFactory replaces the QR login client constructor.
func (m *Manager) SetQRClientFactory(f QRClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrClientFactory = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the live protocol client, nil until authorized.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Ready reports whether an authorized client is available.
func (m *Manager) Ready() bool {
	return m.GetStatus() == StatusReady
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Init restores the stored session. Without one, or when the stored one is
// rejected, the manager stays unauthorized and Init still returns nil so the
// bot can run without a crawler account.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	if !m.hasSession() {
		m.log.Info().Msg("no stored session, waiting for login")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		m.log.Warn().Err(err).Msg("stored session rejected, login required")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	m.log.Info().Msg("crawler account ready")
	return nil
}

func (m *Manager) hasSession() bool {
	var count int64
	if err := m.db.Table("sessions").Count(&count).Error; err != nil {
		m.log.Warn().Err(err).Msg("count stored sessions")
		return false
	}
	return count > 0
}

// Import stores a session obtained elsewhere, such as a Telegram Desktop
// profile, and reconnects with it.
func (m *Manager) Import(ctx context.Context, data *session.Data) error {
	if m.Ready() {
		return ErrAlreadyAuthorized
	}
	if err := m.saveSessionToDB(data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.Init(ctx)
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (m *Manager) IsQRInProgress() bool {
	return m.qrInProgress.Load()
}

// StartQR runs QR login until a scan succeeds or ctx ends. onQRCode gets
// every login URL, including the refreshed ones. On success the session is
// stored and the manager becomes ready.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.Ready() {
		return ErrAlreadyAuthorized
	}

	qrCtx, ok := m.beginQR(ctx)
	if !ok {
		m.log.Info().Msg("QR login already running, request ignored")
		return ErrQRInProgress
	}
	defer m.endQR()

	data, err := m.loginWithQR(qrCtx, onQRCode)
	if err != nil {
		return err
	}

	if err := m.saveSessionToDB(data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.log.Info().Msg("QR login complete, session stored")
	return m.Init(ctx)
}

func (m *Manager) beginQR(ctx context.Context) (context.Context, bool) {
	m.qrMu.Lock()
	defer m.qrMu.Unlock()
	if m.qrInProgress.Load() {
		return nil, false
	}
	qrCtx, cancel := context.WithCancel(ctx)
	m.qrCancel = cancel
	m.qrInProgress.Store(true)
	return qrCtx, true
}

func (m *Manager) endQR() {
	m.qrMu.Lock()
	defer m.qrMu.Unlock()
	if m.qrCancel != nil {
		m.qrCancel()
		m.qrCancel = nil
	}
	m.qrInProgress.Store(false)
}

func (m *Manager) loginWithQR(ctx context.Context, onQRCode func(url string)) (*session.Data, error) {
	m.mu.RLock()
	factory := m.qrClientFactory
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("create QR client: %w", err)
	}

	var data *session.Data
	err = bundle.Client.Run(ctx, func(ctx context.Context) error {
		loggedIn := qrlogin.OnLoginToken(bundle.Dispatcher)
		_, err := bundle.Client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			m.log.Info().Time("expires", token.Expires()).Msg("QR login token issued")
			onQRCode(token.URL())
			return nil
		})
		if err != nil {
			return err
		}
		data, err = (&session.Loader{Storage: bundle.Storage}).Load(ctx)
		return err
	})
	switch {
	case errors.Is(err, context.Canceled):
		return nil, context.Canceled
	case err != nil:
		return nil, fmt.Errorf("QR auth flow failed: %w", err)
	case data == nil:
		return nil, errNilSession
	}
	return data, nil
}

// CancelQR cancels any ongoing QR login flow.
func (m *Manager) CancelQR() {
	m.qrMu.Lock()
	cancel := m.qrCancel
	m.qrMu.Unlock()

	if cancel != nil {
		m.log.Info().Msg("canceling QR login")
		cancel()
	}
}

// saveSessionToDB upserts the single row gotgproto reads on start.
func (m *Manager) saveSessionToDB(data *session.Data) error {
	sess, err := ConvertToGotgprotoSession(data)
	if err != nil {
		return err
	}
	return m.db.Save(sess).Error
}

// Stop disconnects the protocol client. The stored session is kept.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Stop()
		m.client = nil
	}
}
