package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/ratelimit"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/telegram"
)

// errors
var (
	ErrAlreadyRunning = errors.New("crawler is already running")
	ErrNotRunning     = errors.New("crawler is not running")
	ErrNotReady       = errors.New("telegram user client is not authorized")
)

// Cycler runs crawl cycles and reports the state of its user client.
type Cycler interface {
	Cycle(ctx context.Context) (CycleResult, error)
	Ready() bool
	TelegramStatus() telegram.Status
	JoinedToday(ctx context.Context) (int64, error)
	DailyLimit() int
}

// FlagStore persists the crawler switch.
type FlagStore interface {
	GetBool(ctx context.Context, key string, def bool) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

// Notifier receives crawler lifecycle messages, e.g. the websocket hub.
type Notifier interface {
	Broadcast(message interface{})
}

// Run is one start-to-stop period of the crawl loop.
type Run struct {
	ID        uuid.UUID    `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Cycles    int          `json:"cycles"`
	LastCycle *CycleResult `json:"last_cycle,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Status is a snapshot of the crawler.
type Status struct {
	Enabled     bool            `json:"enabled"`
	Running     bool            `json:"running"`
	Telegram    telegram.Status `json:"telegram"`
	JoinedToday int64           `json:"joined_today"`
	DailyLimit  int             `json:"daily_limit"`
	Run         *Run            `json:"run,omitempty"`
}

// Event is broadcast when the loop changes state or finishes a cycle.
type Event struct {
	Type  string       `json:"type"`
	RunID uuid.UUID    `json:"run_id"`
	Cycle *CycleResult `json:"cycle,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Event types.
const (
	EventStarted = "crawler.started"
	EventCycle   = "crawler.cycle"
	EventStopped = "crawler.stopped"
)

// Manager owns the crawl loop. At most one loop runs at a time; the
// persisted switch is re-read before every cycle so a flip elsewhere stops it.
type Manager struct {
	mu       sync.Mutex
	current  *Run
	cancelFn context.CancelFunc
	done     chan struct{}

	crawler  Cycler
	flags    FlagStore
	notifier Notifier
	interval time.Duration
	sleep    ratelimit.SleepFunc
	log      *logger.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier broadcasts lifecycle events.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithSleep replaces the pause between cycles.
func WithSleep(sleep ratelimit.SleepFunc) ManagerOption {
	return func(m *Manager) { m.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l.Component("crawler") }
}

// NewManager creates a manager that runs a cycle every interval.
func NewManager(crawler Cycler, flags FlagStore, interval time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		crawler:  crawler,
		flags:    flags,
		interval: interval,
		sleep:    ratelimit.Sleep,
		log:      logger.Get().Component("crawler"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start turns the switch on and launches the loop.
// returns ErrAlreadyRunning if a loop is already running
func (m *Manager) Start(ctx context.Context) (*Run, error) {
	if !m.crawler.Ready() {
		return nil, ErrNotReady
	}
	if err := m.flags.SetBool(ctx, repository.CrawlerEnabledKey, true); err != nil {
		return nil, fmt.Errorf("enable crawler: %w", err)
	}
	return m.launch()
}

// Resume launches the loop when the switch is already on and the user
// client is authorized. It is a no-op otherwise.
func (m *Manager) Resume(ctx context.Context) (*Run, error) {
	enabled, err := m.flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
	if err != nil {
		return nil, err
	}
	if !enabled {
		m.log.Info().Msg("crawler switch is off")
		return nil, nil
	}
	if !m.crawler.Ready() {
		m.log.Warn().Str("telegram", string(m.crawler.TelegramStatus())).Msg("crawler enabled but user client not ready")
		return nil, nil
	}
	return m.launch()
}

func (m *Manager) launch() (*Run, error) {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	// detached from the caller, which is often a request or command
	runCtx, cancel := context.WithCancel(context.Background())
	run := &Run{ID: uuid.New(), StartedAt: time.Now().UTC()}
	m.current = run
	m.cancelFn = cancel
	m.done = make(chan struct{})

	snap := m.snapshot(run)
	go m.loop(runCtx, run, m.done)
	m.mu.Unlock()

	m.log.Info().Str("run_id", run.ID.String()).Msg("crawler started")
	return snap, nil
}

// Stop turns the switch off and ends the loop, waiting for the running
// cycle to return. It returns ErrNotRunning when no loop was active.
func (m *Manager) Stop(ctx context.Context) error {
	if err := m.flags.SetBool(ctx, repository.CrawlerEnabledKey, false); err != nil {
		return fmt.Errorf("disable crawler: %w", err)
	}

	return m.halt(ctx)
}

// Shutdown ends the loop but leaves the switch on, so the next process
// resumes crawling. It returns ErrNotRunning when no loop was active.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.halt(ctx)
}

func (m *Manager) halt(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancelFn, m.done
	running := m.current != nil
	m.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Current returns a copy of the active run, or nil.
func (m *Manager) Current() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(m.current)
}

// Status reports the switch, loop and user client state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	enabled, err := m.flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
	if err != nil {
		return Status{}, err
	}
	joined, err := m.crawler.JoinedToday(ctx)
	if err != nil {
		return Status{}, err
	}

	run := m.Current()
	return Status{
		Enabled:     enabled,
		Running:     run != nil,
		Telegram:    m.crawler.TelegramStatus(),
		JoinedToday: joined,
		DailyLimit:  m.crawler.DailyLimit(),
		Run:         run,
	}, nil
}

func (m *Manager) loop(ctx context.Context, run *Run, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.current != nil && m.current.ID == run.ID {
			m.current = nil
			m.cancelFn = nil
		}
		m.mu.Unlock()
		m.log.Info().Str("run_id", run.ID.String()).Msg("crawler stopped")
		m.notify(Event{Type: EventStopped, RunID: run.ID})
		close(done)
	}()
	m.notify(Event{Type: EventStarted, RunID: run.ID})

	for first := true; ; first = false {
		if !first {
			if err := m.sleep(ctx, m.interval); err != nil {
				return
			}
			enabled, err := m.flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
			if err != nil {
				m.log.Error().Err(err).Msg("read crawler switch")
			} else if !enabled {
				m.log.Info().Msg("crawler switch turned off")
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		res, err := m.crawler.Cycle(ctx)
		if ctx.Err() != nil {
			return
		}

		ev := Event{Type: EventCycle, RunID: run.ID, Cycle: &res}
		if err != nil {
			m.log.Error().Err(err).Msg("crawl cycle failed")
			ev.Error = err.Error()
		}
		m.notify(ev)

		m.mu.Lock()
		run.Cycles++
		run.LastCycle = &res
		run.LastError = ev.Error
		m.mu.Unlock()
	}
}

func (m *Manager) notify(ev Event) {
	if m.notifier != nil {
		m.notifier.Broadcast(ev)
	}
}

// snapshot copies run under m.mu.
func (m *Manager) snapshot(run *Run) *Run {
	if run == nil {
		return nil
	}
	cp := *run
	if run.LastCycle != nil {
		cycle := *run.LastCycle
		cp.LastCycle = &cycle
	}
	return &cp
}
