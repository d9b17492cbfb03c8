// Package seer implements the seer's lifecycle: a signal-driven state machine
// whose transitions notify a sidecar, plus the ordered shutdown that persists
// knowledge and stops the query server.
package seer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tools.zach/dev/seer/internal/memory"
	"tools.zach/dev/seer/internal/metrics"
	"tools.zach/dev/seer/internal/wisdom"
)

// ErrUnavailable is wrapped by [UnavailableError].
var ErrUnavailable = errors.New("seer unavailable")

// UnavailableError reports a query made outside the Available state.
type UnavailableError struct {
	State State
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("The seer is %s. Please leave a question after the beep.", e.State)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// ///////////////////////////////////////////////
// Seer
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Notifier delivers readiness updates.
	Notifier Notifier
	// Knowledge is the perspective table.
	Knowledge Knowledge
	// Memory persists Knowledge across restarts.
	Memory memory.Store
	// PID is the process id reported once Available.
	PID int
}

// Seer owns the current state. Dispatch and Shutdown are serialized with
// each other; queries may run concurrently with both.
type Seer struct {
	// dispatchMu serializes Dispatch and Shutdown.
	dispatchMu sync.Mutex
	// mu guards state, knowledge and hook against concurrent queries.
	mu sync.RWMutex

	state     State
	knowledge Knowledge
	ctx       Context
	memory    memory.Store

	hook         func()
	shutdownDone bool
}

// New restores persisted knowledge if any, enters Waking and then rallies
// toward Available.
func New(opts Options) *Seer {
	s := &Seer{
		knowledge: opts.Knowledge,
		memory:    opts.Memory,
	}
	s.ctx = Context{
		Notifier:  opts.Notifier,
		Knowledge: &lockedKnowledge{mu: &s.mu, k: opts.Knowledge},
		PID:       opts.PID,
	}

	s.recall()

	s.dispatchMu.Lock()
	s.state = Waking
	Enter(Waking, &s.ctx)
	metrics.SetState(Waking.String(), StateNames())
	s.dispatchMu.Unlock()

	s.Dispatch(Rally)
	return s
}

// recall loads persisted knowledge. Missing or unreadable memories leave the
// knowledge meager so Waking acquires the defaults.
func (s *Seer) recall() {
	if s.memory == nil {
		return
	}
	snap, found, err := s.memory.Load()
	switch {
	case err != nil:
		slog.Warn("memories unreadable, using book knowledge", "error", err)
		return
	case !found:
		slog.Debug("no memories found, using book knowledge")
		return
	}
	if err := s.knowledge.Restore(snap); err != nil {
		slog.Warn("memories rejected, using book knowledge", "error", err)
		return
	}
	slog.Info("memories recalled", "perspectives", len(snap.Perspectives), "index", snap.Index)
}

// Dispatch applies e to the current state and returns the resulting state.
func (s *Seer) Dispatch(e Event) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.dispatchLocked(e)
}

// dispatchLocked requires dispatchMu. Entry effects run before the new state
// becomes visible to queries.
func (s *Seer) dispatchLocked(e Event) State {
	s.mu.RLock()
	from := s.state
	s.mu.RUnlock()

	to := Apply(from, e, &s.ctx)

	s.mu.Lock()
	s.state = to
	s.mu.Unlock()

	if to != from {
		slog.Info("state changed", "from", from, "to", to, "event", e)
		metrics.RecordTransition(from.String(), to.String(), e.String(), StateNames())
	}
	return to
}

// RegisterShutdownHook stores fn to be called once by [Seer.Shutdown]. Only
// the first registration is kept. If shutdown already ran, fn is called now.
func (s *Seer) RegisterShutdownHook(fn func()) {
	s.mu.Lock()
	if s.hook != nil {
		s.mu.Unlock()
		slog.Warn("shutdown hook already registered, ignoring")
		return
	}
	if s.shutdownDone {
		s.mu.Unlock()
		slog.Debug("shutdown already ran, invoking hook immediately")
		fn()
		return
	}
	s.hook = fn
	s.mu.Unlock()
}

// Shutdown persists knowledge, enters Sleeping and invokes the shutdown hook.
// It runs at most once; later calls return nil. A persistence failure is
// returned but does not stop the remaining steps.
func (s *Seer) Shutdown() error {
	s.dispatchMu.Lock()

	s.mu.Lock()
	if s.shutdownDone {
		s.mu.Unlock()
		s.dispatchMu.Unlock()
		slog.Debug("shutdown already performed")
		return nil
	}
	s.shutdownDone = true
	s.mu.Unlock()

	var err error
	if s.memory != nil {
		slog.Info("saving memories")
		if saveErr := s.memory.Save(s.ctx.Knowledge.Snapshot()); saveErr != nil {
			err = fmt.Errorf("persist knowledge: %w", saveErr)
			slog.Error("failed to save memories", "error", saveErr)
		}
	}

	s.dispatchLocked(Sleep)

	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()
	s.dispatchMu.Unlock()

	if hook == nil {
		// The query server was not started yet.
		return err
	}
	hook()
	return err
}

// ///////////////////////////////////////////////
// Signal Loop
// ///////////////////////////////////////////////

// Run consumes signals until ctx is done. Shutdown signals run [Seer.Shutdown];
// mapped signals dispatch their event; others are logged and ignored.
func (s *Seer) Run(ctx context.Context, signals <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			s.HandleSignal(sig)
		}
	}
}

// HandleSignal acts on one signal.
func (s *Seer) HandleSignal(sig os.Signal) {
	slog.Debug("signal received", "signal", sig)
	if IsShutdownSignal(sig) {
		if err := s.Shutdown(); err != nil {
			slog.Error("shutdown completed with errors", "error", err)
		}
		return
	}
	e, ok := EventFor(sig)
	if !ok {
		slog.Warn("unmapped signal ignored", "signal", sig)
		return
	}
	s.Dispatch(e)
}

// ///////////////////////////////////////////////
// Queries
// ///////////////////////////////////////////////

// State returns the current state.
func (s *Seer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StateName returns the current state's name.
func (s *Seer) StateName() string {
	return s.State().String()
}

// PID returns the process id reported in readiness updates. It is only
// stable between dispatches.
func (s *Seer) PID() int {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.ctx.PID
}

// Answer returns a random answer from the current perspective, or an
// [*UnavailableError] outside Available.
func (s *Seer) Answer() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Available {
		return "", &UnavailableError{State: s.state}
	}
	return s.knowledge.Answer(), nil
}

// PerspectiveIndex returns the current perspective index, or an
// [*UnavailableError] outside Available.
func (s *Seer) PerspectiveIndex() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Available {
		return 0, &UnavailableError{State: s.state}
	}
	return s.knowledge.PerspectiveIndex(), nil
}

// ///////////////////////////////////////////////
// Locked Knowledge
// ///////////////////////////////////////////////

// lockedKnowledge guards a Knowledge with the seer's query lock so entry
// effects can mutate it while queries read it.
type lockedKnowledge struct {
	mu *sync.RWMutex
	k  Knowledge
}

func (l *lockedKnowledge) AcquireKnowledge() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.AcquireKnowledge()
}

func (l *lockedKnowledge) IsMeager() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.IsMeager()
}

func (l *lockedKnowledge) Answer() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Answer()
}

func (l *lockedKnowledge) PerspectiveIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.PerspectiveIndex()
}

func (l *lockedKnowledge) Snapshot() wisdom.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Snapshot()
}

func (l *lockedKnowledge) Restore(snap wisdom.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Restore(snap)
}
