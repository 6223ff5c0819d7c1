// Package supervisor implements the host process's service-lifecycle
// manager (§4.3): it spawns the four service child processes, isolates
// their crashes with a bounded crash-window policy, restarts them with
// backoff, and exposes a readiness heartbeat. Grounded on the teacher's
// internal/daemon pidfile/lifecycle conventions and internal/lifecycle's
// ollama child-process management, generalized from one managed child to N
// named services with a crash-window state machine.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/betterspotlight/bspotlight/internal/ipc"
)

// State is a service's position in the per-service state machine:
// Registered -> Starting -> Ready -> (Backoff -> Starting)* -> Crashed /
// GivingUp / Stopped.
type State string

const (
	StateRegistered State = "registered"
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateBackoff    State = "backoff"
	StateCrashed    State = "crashed"
	StateGivingUp   State = "giving_up"
	StateStopped    State = "stopped"
)

const (
	crashWindow          = 60 * time.Second
	maxCrashesBeforeGiveUp = 3
	heartbeatInterval    = 10 * time.Second
	quietGiveUpWindow    = 2 * crashWindow

	shutdownRequestTimeout = 2 * time.Second
	gracefulExitWait       = 5 * time.Second
	sigtermWait            = 2 * time.Second
)

// Event is the small lifecycle-event enum the supervisor publishes.
// Consumers subscribe via Subscribe; delivery happens synchronously on the
// supervisor's own goroutines (heartbeat timer or child-wait goroutines).
type Event struct {
	Kind       EventKind
	Service    string
	CrashCount int
}

type EventKind string

const (
	EventServiceCrashed   EventKind = "serviceCrashed"
	EventServiceStarted   EventKind = "serviceStarted"
	EventAllServicesReady EventKind = "allServicesReady"
)

type service struct {
	name           string
	executablePath string

	mu             sync.Mutex
	state          State
	cmd            *exec.Cmd
	pid            int
	crashCount     int
	firstCrashTime time.Time
	lastCrashTime  time.Time
	lastCrashSeen  time.Time // last time heartbeat observed GivingUp, for the quiet-reset window
	client         *ipc.Client
	stopping       bool
}

// Supervisor owns every registered service record. It is the sole owner;
// clients and process handles held elsewhere are non-owning views keyed by
// name, per the "arena-style ownership" design note.
type Supervisor struct {
	socketDir string
	pidDir    string
	log       *slog.Logger

	mu       sync.Mutex
	services map[string]*service
	order    []string

	subMu sync.Mutex
	subs  []chan Event

	heartbeatCancel context.CancelFunc
	heartbeatDone   chan struct{}
}

// New creates a supervisor rooted at the given socket/pid directories (see
// internal/runtimeenv).
func New(socketDir, pidDir string, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		socketDir: socketDir,
		pidDir:    pidDir,
		log:       log,
		services:  make(map[string]*service),
	}
}

// Subscribe returns a channel that receives every published Event. The
// channel is buffered; slow consumers may miss bursts, matching the
// "consumers opt in" design note — callers needing guaranteed delivery
// should drain promptly.
func (s *Supervisor) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Supervisor) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// AddService registers (or idempotently re-registers) a named service.
// Re-registering with the same name updates its executable path, resets
// crash counters, and returns the service to Registered.
func (s *Supervisor) AddService(name, executablePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[name]; ok {
		svc.mu.Lock()
		svc.executablePath = executablePath
		svc.state = StateRegistered
		svc.crashCount = 0
		svc.firstCrashTime = time.Time{}
		svc.lastCrashTime = time.Time{}
		svc.mu.Unlock()
		return
	}
	s.services[name] = &service{name: name, executablePath: executablePath, state: StateRegistered}
	s.order = append(s.order, name)
}

// StartAll creates the runtime directories, launches every registered
// child, and starts the 10s heartbeat timer. Returns false if any child
// failed to spawn (the others are still started on a best-effort basis).
func (s *Supervisor) StartAll() bool {
	if err := os.MkdirAll(s.socketDir, 0o700); err != nil {
		s.log.Error("supervisor: create socket dir", slog.String("error", err.Error()))
		return false
	}
	if err := os.MkdirAll(s.pidDir, 0o700); err != nil {
		s.log.Error("supervisor: create pid dir", slog.String("error", err.Error()))
		return false
	}

	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	var ok atomic.Bool
	ok.Store(true)
	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := s.spawn(name); err != nil {
				s.log.Error("supervisor: spawn failed", slog.String("service", name), slog.String("error", err.Error()))
				ok.Store(false)
			}
			return nil
		})
	}
	_ = g.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	s.heartbeatCancel = cancel
	s.heartbeatDone = make(chan struct{})
	go s.heartbeatLoop(ctx)

	return ok.Load()
}

func (s *Supervisor) spawn(name string) error {
	s.mu.Lock()
	svc, ok := s.services[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown service %q", name)
	}

	svc.mu.Lock()
	svc.state = StateStarting
	path := svc.executablePath
	svc.mu.Unlock()

	cmd := exec.Command(path)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start %s: %w", name, err)
	}

	svc.mu.Lock()
	svc.cmd = cmd
	svc.pid = cmd.Process.Pid
	svc.mu.Unlock()

	go s.waitForExit(svc, cmd)
	return nil
}

// waitForExit blocks until the child exits, then runs crash policy unless
// the service is mid-stop.
func (s *Supervisor) waitForExit(svc *service, cmd *exec.Cmd) {
	err := cmd.Wait()

	svc.mu.Lock()
	stopping := svc.stopping
	svc.stopping = false
	svc.mu.Unlock()
	if stopping {
		return
	}

	if err == nil {
		// Clean exit with status 0 is not a crash, but a long-running
		// service exiting cleanly still needs to be treated like one --
		// nothing else will restart it otherwise.
		s.onCrash(svc)
		return
	}
	s.onCrash(svc)
}

// onCrash implements the crash window / threshold / backoff policy (§4.3).
func (s *Supervisor) onCrash(svc *service) {
	now := time.Now()

	svc.mu.Lock()
	if svc.crashCount == 0 || now.Sub(svc.firstCrashTime) > crashWindow {
		svc.crashCount = 0
		svc.firstCrashTime = now
	}
	svc.crashCount++
	svc.lastCrashTime = now
	count := svc.crashCount
	svc.mu.Unlock()

	s.publish(Event{Kind: EventServiceCrashed, Service: svc.name, CrashCount: count})

	if count >= maxCrashesBeforeGiveUp {
		svc.mu.Lock()
		svc.state = StateGivingUp
		svc.lastCrashSeen = now
		svc.mu.Unlock()
		s.log.Warn("supervisor: service giving up after repeated crashes",
			slog.String("service", svc.name), slog.Int("crashes", count))
		return
	}

	svc.mu.Lock()
	svc.state = StateBackoff
	svc.mu.Unlock()

	delay := restartDelay(count)
	go func() {
		time.Sleep(delay)
		if err := s.spawn(svc.name); err != nil {
			s.log.Error("supervisor: restart failed", slog.String("service", svc.name), slog.String("error", err.Error()))
		}
	}()
}

// restartDelay computes the backoff before the count'th restart attempt:
// the first retry is 0-125ms of jitter; every later retry doubles a 1s
// base (capped at 30s) plus up to 25% jitter.
func restartDelay(count int) time.Duration {
	if count <= 1 {
		return time.Duration(rand.Int63n(int64(125 * time.Millisecond)))
	}
	base := time.Second << (count - 2)
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

// StopAll gracefully shuts down every service: request shutdown over IPC
// (2s timeout), wait 5s, escalate to SIGTERM, wait 2s, escalate to SIGKILL.
// Idempotent.
func (s *Supervisor) StopAll() {
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
		<-s.heartbeatDone
	}

	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopOne(name)
		}()
	}
	wg.Wait()
}

func (s *Supervisor) stopOne(name string) {
	s.mu.Lock()
	svc, ok := s.services[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	svc.mu.Lock()
	svc.stopping = true
	client := svc.client
	cmd := svc.cmd
	state := svc.state
	svc.mu.Unlock()

	if state == StateStopped || cmd == nil || cmd.Process == nil {
		return
	}

	if client != nil {
		client.SendRequest("shutdown", nil, int(shutdownRequestTimeout/time.Millisecond))
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.markStopped(svc)
		return
	case <-time.After(gracefulExitWait):
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		s.markStopped(svc)
		return
	case <-time.After(sigtermWait):
	}

	_ = cmd.Process.Kill()
	<-done
	s.markStopped(svc)
}

func (s *Supervisor) markStopped(svc *service) {
	svc.mu.Lock()
	svc.state = StateStopped
	svc.mu.Unlock()
}

// ServiceSnapshot is the observer-facing view of one service's state.
type ServiceSnapshot struct {
	Name           string
	CrashCount     int
	FirstCrashTime time.Time
	LastCrashTime  time.Time
	Ready          bool
	Running        bool
	State          State
	PID            int
}

// Snapshot returns the current state of every registered service.
func (s *Supervisor) Snapshot() []ServiceSnapshot {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	out := make([]ServiceSnapshot, 0, len(names))
	for _, name := range names {
		s.mu.Lock()
		svc := s.services[name]
		s.mu.Unlock()

		svc.mu.Lock()
		out = append(out, ServiceSnapshot{
			Name:           svc.name,
			CrashCount:     svc.crashCount,
			FirstCrashTime: svc.firstCrashTime,
			LastCrashTime:  svc.lastCrashTime,
			Ready:          svc.state == StateReady,
			Running:        svc.cmd != nil && svc.state != StateStopped && svc.state != StateGivingUp,
			State:          svc.state,
			PID:            svc.pid,
		})
		svc.mu.Unlock()
	}
	return out
}

// AttachClient registers svc's IPC client, used by StopAll and the
// heartbeat loop to talk to the running child. Non-owning: supervisor
// holds a reference by name only.
func (s *Supervisor) AttachClient(name string, client *ipc.Client) {
	s.mu.Lock()
	svc, ok := s.services[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	svc.mu.Lock()
	svc.client = client
	svc.mu.Unlock()
}

// heartbeatLoop pings every Running service every 10s; a successful ping
// promotes Starting->Ready (emitting serviceStarted, and allServicesReady
// once every service is Ready); an error or timeout demotes Ready back to
// Starting. Services quiet in GivingUp for more than 2x the crash window
// have their counters reset and are restarted.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	defer close(s.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeatTick()
		}
	}
}

func (s *Supervisor) heartbeatTick() {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	allReady := true
	for _, name := range names {
		s.mu.Lock()
		svc := s.services[name]
		s.mu.Unlock()

		svc.mu.Lock()
		state := svc.state
		client := svc.client
		svc.mu.Unlock()

		switch state {
		case StateGivingUp:
			svc.mu.Lock()
			quiet := time.Since(svc.lastCrashSeen)
			svc.mu.Unlock()
			if quiet > quietGiveUpWindow {
				svc.mu.Lock()
				svc.crashCount = 0
				svc.state = StateRegistered
				svc.mu.Unlock()
				if err := s.spawn(name); err != nil {
					s.log.Error("supervisor: give-up restart failed", slog.String("service", name), slog.String("error", err.Error()))
				}
			}
			allReady = false
			continue
		case StateStopped:
			continue
		}

		if client == nil {
			allReady = false
			continue
		}

		resp, ok := client.SendRequest("ping", nil, 2000)
		ready := ok && resp != nil && resp.Type != "error"
		svc.mu.Lock()
		prevState := svc.state
		if ready {
			svc.state = StateReady
		} else if svc.state == StateReady {
			svc.state = StateStarting
		}
		newState := svc.state
		svc.mu.Unlock()

		if ready && prevState != StateReady {
			s.publish(Event{Kind: EventServiceStarted, Service: name})
		}
		if newState != StateReady {
			allReady = false
		}
	}

	if allReady && len(names) > 0 {
		s.publish(Event{Kind: EventAllServicesReady})
	}
}
