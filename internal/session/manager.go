package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/devicecloud-mini/internal/artifacts"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// DefaultRetained is how many closed sessions stay visible as snapshots.
const DefaultRetained = 32

// Manager keeps the live sessions started through it, bounded by a limit
// on live sessions. Once a session is torn down it is evicted and only its
// final snapshot is retained.
type Manager struct {
	orchestrator *Orchestrator
	sessions     sync.Map // handle -> *Session, live until retired
	slots        *semaphore.Weighted
	store        *artifacts.Manager
	limits       artifacts.Limits
	ctx          context.Context
	logger       zerolog.Logger
	wg           sync.WaitGroup

	mu       sync.Mutex
	retired  []Snapshot // oldest first
	retain   int
	onClosed []func(handle string)
}

// NewManager creates a session manager. Sessions live until closed or
// until ctx is done. store may be nil to skip artifacts.
func NewManager(ctx context.Context, o *Orchestrator, maxSessions int64, store *artifacts.Manager, logger zerolog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Manager{
		orchestrator: o,
		slots:        semaphore.NewWeighted(maxSessions),
		store:        store,
		limits:       artifacts.DefaultLimits,
		ctx:          ctx,
		logger:       logger,
		retain:       DefaultRetained,
	}
}

// OnClosed registers fn to run with the handle of every session once it
// has been torn down and evicted, whatever ended it.
func (m *Manager) OnClosed(fn func(handle string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClosed = append(m.onClosed, fn)
}

// CreateSession starts opening a session for a device
func (m *Manager) CreateSession(auth *models.Authentication, deviceDescriptorID string, launcher Launcher) (*Session, error) {
	if !m.slots.TryAcquire(1) {
		return nil, ErrCapacity
	}

	s := m.orchestrator.Connect(m.ctx, auth, deviceDescriptorID, launcher)
	m.sessions.Store(s.ID, s)
	metrics.ActiveSessions.Inc()

	m.wg.Add(1)
	go m.supervise(s)

	return s, nil
}

// GetSession retrieves a live session by handle. A retired session yields
// ErrClosed.
func (m *Manager) GetSession(id string) (*Session, error) {
	if value, ok := m.sessions.Load(id); ok {
		return value.(*Session), nil
	}
	if _, ok := m.retiredSnapshot(id); ok {
		return nil, ErrClosed
	}
	return nil, ErrNotFound
}

// Snapshot returns the state of a live or retired session.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	if value, ok := m.sessions.Load(id); ok {
		return value.(*Session).Snapshot(), nil
	}
	if snap, ok := m.retiredSnapshot(id); ok {
		return snap, nil
	}
	return Snapshot{}, ErrNotFound
}

// Snapshots returns the retired sessions followed by the live ones, each
// oldest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	out := append([]Snapshot(nil), m.retired...)
	m.mu.Unlock()

	seen := make(map[string]bool, len(out))
	for _, snap := range out {
		seen[snap.ID] = true
	}
	for _, s := range m.ListSessions() {
		if !seen[s.ID] {
			out = append(out, s.Snapshot())
		}
	}
	return out
}

func (m *Manager) retiredSnapshot(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.retired {
		if snap.ID == id {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// retire records the final snapshot of s and drops s itself. The snapshot
// is stored before the eviction so lookups never miss the session.
func (m *Manager) retire(s *Session) {
	m.mu.Lock()
	m.retired = append(m.retired, s.Snapshot())
	if over := len(m.retired) - m.retain; over > 0 {
		m.retired = append([]Snapshot(nil), m.retired[over:]...)
	}
	hooks := append(([]func(string))(nil), m.onClosed...)
	m.mu.Unlock()

	m.sessions.Delete(s.ID)
	for _, fn := range hooks {
		fn(s.ID)
	}
}

// ListSessions returns the live sessions, oldest first
func (m *Manager) ListSessions() []*Session {
	var sessions []*Session
	m.sessions.Range(func(_, value any) bool {
		sessions = append(sessions, value.(*Session))
		return true
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})
	return sessions
}

// DeleteSession closes a session and waits for its teardown. Deleting a
// retired session is a no-op.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	s, err := m.GetSession(id)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	s.Close()
	select {
	case <-s.Closed():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown tears down every live session and waits for their artifacts
func (m *Manager) Shutdown(ctx context.Context) error {
	m.sessions.Range(func(_, value any) bool {
		value.(*Session).Teardown(ReasonShutdown)
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// supervise records the session's diagnostics, then retires it and
// releases its slot once it is torn down.
func (m *Manager) supervise(s *Session) {
	defer m.wg.Done()

	rec := artifacts.NewRecorder(m.limits)
	var follow sync.WaitGroup
	var comp *companion.Channel
	var deviceSessionID string
	followingScreens := false

	updates, unsubscribe := s.Progress().Subscribe()
watch:
	for {
		select {
		case p := <-updates:
			if p.Session != nil {
				deviceSessionID = p.Session.DeviceSessionID
			}
			if p.Companion != nil && comp == nil {
				comp = p.Companion
				logs, _ := comp.LogMessages.Subscribe()
				follow.Add(1)
				go func() {
					defer follow.Done()
					for line := range logs {
						rec.AddLog(line.Message)
					}
				}()
			}
			if p.Ready != nil && !followingScreens {
				followingScreens = true
				shots, _ := p.Ready.AlternativeIO.Screenshots.Subscribe()
				follow.Add(1)
				go func() {
					defer follow.Done()
					for frame := range shots {
						rec.AddScreenshot(frame)
					}
				}()
			}
			if p.Stage == StageReady || p.Stage == StageError {
				break watch
			}
		case <-s.Closed():
			break watch
		}
	}
	unsubscribe()

	<-s.Closed()
	follow.Wait()

	if m.store != nil && deviceSessionID != "" && !rec.Empty() {
		artifact, err := m.store.Save(deviceSessionID, rec)
		if err != nil {
			m.logger.Error().Err(err).Str("handle", s.ID).Msg("failed to save session artifacts")
		} else {
			m.logger.Info().Str("handle", s.ID).Str("artifact_id", artifact.ID).Msg("session artifacts saved")
		}
	}

	m.retire(s)
	m.slots.Release(1)
	metrics.ActiveSessions.Dec()
}
