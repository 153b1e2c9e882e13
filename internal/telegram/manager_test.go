package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/celestix/gotgproto"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/config"
)

var testConfig = &config.Config{TGApiID: 12345, TGApiHash: "test_hash"}

func newSessionDB(t *testing.T, seeded bool) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE sessions (version integer primary key, data blob)").Error)
	if seeded {
		require.NoError(t, db.Exec("INSERT INTO sessions (version, data) VALUES (1, ?)", []byte(`{}`)).Error)
	}
	return db
}

func readyFactory(calls *int) ClientFactory {
	return func(context.Context, *config.Config, *gorm.DB) (*gotgproto.Client, error) {
		*calls++
		return &gotgproto.Client{}, nil
	}
}

func TestManager_InitWithoutSession(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, false))
	calls := 0
	m.SetClientFactory(readyFactory(&calls))

	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
	assert.Zero(t, calls, "no connection attempt without a session")
	assert.Nil(t, m.GetClient())
}

func TestManager_InitRejectedSession(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, true))
	m.SetClientFactory(func(context.Context, *config.Config, *gorm.DB) (*gotgproto.Client, error) {
		return nil, errors.New("AUTH_KEY_UNREGISTERED")
	})

	require.NoError(t, m.Init(context.Background()), "a bad session must not stop the bot")
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
	assert.False(t, m.Ready())
}

func TestManager_InitWithSession(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, true))
	calls := 0
	m.SetClientFactory(readyFactory(&calls))

	require.NoError(t, m.Init(context.Background()))
	assert.True(t, m.Ready())
	assert.NotNil(t, m.GetClient())
	assert.Equal(t, 1, calls)
}

func TestManager_StartQR_AlreadyReady(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, true))
	calls := 0
	m.SetClientFactory(readyFactory(&calls))
	require.NoError(t, m.Init(context.Background()))

	qrCalled := false
	m.SetQRClientFactory(func(*config.Config) (*QRClientBundle, error) {
		qrCalled = true
		return nil, errors.New("unreachable")
	})

	err := m.StartQR(context.Background(), func(string) {})
	assert.ErrorIs(t, err, ErrAlreadyAuthorized)
	assert.False(t, qrCalled)
	assert.False(t, m.IsQRInProgress())
}

func TestManager_StartQR_UsesQRFactory(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, false))
	factoryErr := errors.New("mock factory called")

	regularCalls := 0
	m.SetClientFactory(readyFactory(&regularCalls))
	m.SetQRClientFactory(func(*config.Config) (*QRClientBundle, error) {
		return nil, factoryErr
	})

	var urls []string
	err := m.StartQR(context.Background(), func(url string) { urls = append(urls, url) })

	assert.ErrorIs(t, err, factoryErr)
	assert.Zero(t, regularCalls, "QR login never builds the persistent client")
	assert.Empty(t, urls)
	assert.False(t, m.IsQRInProgress(), "flag is released after a failed attempt")
}

func TestManager_StartQR_RejectsConcurrentFlow(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, false))

	entered := make(chan struct{})
	release := make(chan struct{})
	m.SetQRClientFactory(func(*config.Config) (*QRClientBundle, error) {
		close(entered)
		<-release
		return nil, errors.New("done")
	})

	first := make(chan error, 1)
	go func() { first <- m.StartQR(context.Background(), func(string) {}) }()
	<-entered

	assert.True(t, m.IsQRInProgress())
	assert.ErrorIs(t, m.StartQR(context.Background(), func(string) {}), ErrQRInProgress)

	close(release)
	assert.Error(t, <-first)
	assert.False(t, m.IsQRInProgress())
}

func TestManager_CancelQRWithoutFlow(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, false))
	assert.NotPanics(t, m.CancelQR)
	assert.False(t, m.IsQRInProgress())
}

func TestManager_Import(t *testing.T) {
	db := newSessionDB(t, false)
	m := NewManager(testConfig, db)
	calls := 0
	m.SetClientFactory(readyFactory(&calls))
	require.NoError(t, m.Init(context.Background()))
	require.False(t, m.Ready())

	require.NoError(t, m.Import(context.Background(), sessionFixture()))
	assert.True(t, m.Ready())
	assert.Equal(t, 1, calls)

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	assert.ErrorIs(t, m.Import(context.Background(), sessionFixture()), ErrAlreadyAuthorized)
}

func TestManager_ImportNilSession(t *testing.T) {
	m := NewManager(testConfig, newSessionDB(t, false))
	assert.ErrorIs(t, m.Import(context.Background(), nil), errNilSession)
	assert.NotEqual(t, StatusReady, m.GetStatus())
}

func TestManager_GetStatus_Concurrent(t *testing.T) {
	m := NewManager(&config.Config{}, newSessionDB(t, false))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			m.GetStatus()
		}()
		go func() {
			defer wg.Done()
			<-start
			_ = m.Init(context.Background())
		}()
	}

	close(start)
	wg.Wait()
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
}

func TestManager_StopWithoutClient(t *testing.T) {
	m := NewManager(&config.Config{}, newSessionDB(t, false))
	assert.NotPanics(t, m.Stop)
}
