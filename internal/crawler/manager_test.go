package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/telegram"
)

type fakeCycler struct {
	ready  bool
	cycles atomic.Int32
	ran    chan struct{}
}

func newFakeCycler() *fakeCycler {
	return &fakeCycler{ready: true, ran: make(chan struct{}, 16)}
}

func (f *fakeCycler) Cycle(ctx context.Context) (CycleResult, error) {
	n := f.cycles.Add(1)
	f.ran <- struct{}{}
	return CycleResult{Stored: int(n)}, nil
}

func (f *fakeCycler) Ready() bool { return f.ready }

func (f *fakeCycler) TelegramStatus() telegram.Status {
	if f.ready {
		return telegram.StatusReady
	}
	return telegram.StatusUnauthorized
}

func (f *fakeCycler) JoinedToday(context.Context) (int64, error) { return 3, nil }

func (f *fakeCycler) DailyLimit() int { return 10 }

type memFlags struct {
	mu   sync.Mutex
	vals map[string]bool
}

func (m *memFlags) GetBool(_ context.Context, key string, def bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vals[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memFlags) SetBool(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = make(map[string]bool)
	}
	m.vals[key] = value
	return nil
}

type collectNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectNotifier) Broadcast(message interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, message.(Event))
}

func (c *collectNotifier) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

// blockingSleep parks the loop until its context ends.
func blockingSleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func waitCycle(t *testing.T, c *fakeCycler) {
	t.Helper()
	select {
	case <-c.ran:
	case <-time.After(time.Second):
		t.Fatal("cycle did not run")
	}
}

func TestManager_StartStop(t *testing.T) {
	cycler := newFakeCycler()
	flags := &memFlags{}
	notifier := &collectNotifier{}
	m := NewManager(cycler, flags, time.Hour, WithSleep(blockingSleep), WithNotifier(notifier))
	ctx := context.Background()

	run, err := m.Start(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.NotEqual(t, uuid.Nil, run.ID)

	waitCycle(t, cycler)
	require.Eventually(t, func() bool {
		run := m.Current()
		return run != nil && run.Cycles == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsRunning())
	on, _ := flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
	assert.True(t, on)

	_, err = m.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, m.Stop(ctx))
	assert.False(t, m.IsRunning())
	assert.Nil(t, m.Current())
	on, _ = flags.GetBool(ctx, repository.CrawlerEnabledKey, true)
	assert.False(t, on)

	assert.Equal(t, []string{EventStarted, EventCycle, EventStopped}, notifier.types())
}

func TestManager_StopWhenIdle(t *testing.T) {
	flags := &memFlags{vals: map[string]bool{repository.CrawlerEnabledKey: true}}
	m := NewManager(newFakeCycler(), flags, time.Hour)

	assert.ErrorIs(t, m.Stop(context.Background()), ErrNotRunning)
	on, _ := flags.GetBool(context.Background(), repository.CrawlerEnabledKey, true)
	assert.False(t, on, "switch is cleared even when idle")
}

func TestManager_ShutdownKeepsSwitch(t *testing.T) {
	cycler := newFakeCycler()
	flags := &memFlags{}
	m := NewManager(cycler, flags, time.Hour, WithSleep(blockingSleep))
	ctx := context.Background()

	_, err := m.Start(ctx)
	require.NoError(t, err)
	waitCycle(t, cycler)

	require.NoError(t, m.Shutdown(ctx))
	assert.False(t, m.IsRunning())
	on, _ := flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
	assert.True(t, on)

	assert.ErrorIs(t, m.Shutdown(ctx), ErrNotRunning)
}

func TestManager_StartNotReady(t *testing.T) {
	cycler := newFakeCycler()
	cycler.ready = false
	flags := &memFlags{}
	m := NewManager(cycler, flags, time.Hour)

	_, err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, m.IsRunning())
	assert.Empty(t, flags.vals)
}

func TestManager_Resume(t *testing.T) {
	ctx := context.Background()

	off := NewManager(newFakeCycler(), &memFlags{}, time.Hour)
	run, err := off.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.False(t, off.IsRunning())

	cycler := newFakeCycler()
	flags := &memFlags{vals: map[string]bool{repository.CrawlerEnabledKey: true}}
	on := NewManager(cycler, flags, time.Hour, WithSleep(blockingSleep))
	run, err = on.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	waitCycle(t, cycler)
	require.NoError(t, on.Stop(ctx))
}

func TestManager_SwitchOffEndsLoop(t *testing.T) {
	cycler := newFakeCycler()
	flags := &memFlags{}
	ctx := context.Background()

	var naps atomic.Int32
	sleep := func(ctx context.Context, _ time.Duration) error {
		if naps.Add(1) == 1 {
			// another process flips the switch during the pause
			return flags.SetBool(ctx, repository.CrawlerEnabledKey, false)
		}
		return ctx.Err()
	}
	m := NewManager(cycler, flags, time.Minute, WithSleep(sleep))

	_, err := m.Start(ctx)
	require.NoError(t, err)
	waitCycle(t, cycler)

	require.Eventually(t, func() bool { return !m.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), cycler.cycles.Load())
}

func TestManager_Status(t *testing.T) {
	cycler := newFakeCycler()
	flags := &memFlags{}
	m := NewManager(cycler, flags, time.Hour, WithSleep(blockingSleep))
	ctx := context.Background()

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.False(t, st.Running)
	assert.Equal(t, telegram.StatusReady, st.Telegram)
	assert.Equal(t, int64(3), st.JoinedToday)
	assert.Equal(t, 10, st.DailyLimit)

	_, err = m.Start(ctx)
	require.NoError(t, err)
	waitCycle(t, cycler)

	require.Eventually(t, func() bool {
		st, err := m.Status(ctx)
		return err == nil && st.Run != nil && st.Run.Cycles == 1
	}, time.Second, 5*time.Millisecond)

	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.True(t, st.Running)
	require.NotNil(t, st.Run.LastCycle)
	assert.Equal(t, 1, st.Run.LastCycle.Stored)

	require.NoError(t, m.Stop(ctx))
}
