package ffmpeg

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radiocast/backend/internal/domain"
)

// fakeClock delivers ticks and timer fires only when the test asks for them.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) NewTimer(time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

// Tick advances time by one period per tick and hands the tick to every live
// ticker. Each send blocks until the supervisor has finished its previous tick.
func (c *fakeClock) Tick(n int) {
	for i := 0; i < n; i++ {
		c.mu.Lock()
		c.now = c.now.Add(time.Second)
		now := c.now
		live := c.tickers[:0]
		for _, t := range c.tickers {
			if !t.isStopped() {
				live = append(live, t)
			}
		}
		c.tickers = live
		snapshot := append([]*fakeTicker(nil), live...)
		c.mu.Unlock()

		for _, t := range snapshot {
			select {
			case t.c <- now:
			case <-t.stopped:
			}
		}
	}
}

// PendingTimers counts timers that have not fired or been stopped
func (c *fakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.pending() {
			n++
		}
	}
	return n
}

// FireTimers fires every pending timer and returns how many fired
func (c *fakeClock) FireTimers() int {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	now := c.now
	c.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if t.fire(now) {
			fired++
		}
	}
	return fired
}

// FireNext fires the oldest pending timer
func (c *fakeClock) FireNext() bool {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	now := c.now
	c.mu.Unlock()

	for _, t := range timers {
		if t.fire(now) {
			return true
		}
	}
	return false
}

type fakeTicker struct {
	c       chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type fakeTimer struct {
	mu   sync.Mutex
	c    chan time.Time
	done bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

func (t *fakeTimer) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *fakeTimer) fire(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.c <- now
	return true
}

// fakeProcess is a worker that runs until the test exits or kills it.
type fakeProcess struct {
	pid    int
	spec   SpawnSpec
	exited atomic.Bool
	killed atomic.Bool
	lines  []string
}

func (p *fakeProcess) Pid() int         { return p.pid }
func (p *fakeProcess) Exited() bool     { return p.exited.Load() }
func (p *fakeProcess) Output() []string { return p.lines }

func (p *fakeProcess) ExitErr() error {
	if p.exited.Load() {
		return errors.New("exit status 1")
	}
	return nil
}

func (p *fakeProcess) Kill(time.Duration) error {
	p.killed.Store(true)
	p.exited.Store(true)
	return nil
}

// Exit simulates the process dying on its own
func (p *fakeProcess) Exit() { p.exited.Store(true) }

// fakeSpawner records every spawn and can fail or block per role.
type fakeSpawner struct {
	mu      sync.Mutex
	nextPID int
	procs   []*fakeProcess
	fail    map[domain.WorkerRole]bool
	gate    chan struct{}
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPID: 1000, fail: make(map[domain.WorkerRole]bool)}
}

func (s *fakeSpawner) Spawn(ctx context.Context, spec SpawnSpec) (Process, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[spec.Role] {
		return nil, errors.New("exec: no such file")
	}
	s.nextPID++
	p := &fakeProcess{
		pid:   s.nextPID,
		spec:  spec,
		lines: []string{"Input #0, mp3, from '" + spec.SourceURL + "':"},
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) setFail(role domain.WorkerRole, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[role] = fail
}

func (s *fakeSpawner) count(role domain.WorkerRole) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		if p.spec.Role == role {
			n++
		}
	}
	return n
}

// latest returns the most recent process spawned for role
func (s *fakeSpawner) latest(role domain.WorkerRole) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.procs) - 1; i >= 0; i-- {
		if s.procs[i].spec.Role == role {
			return s.procs[i]
		}
	}
	return nil
}
