package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"adstudio/internal/view"
)

// Persister saves view snapshots so a session survives a restart.
type Persister interface {
	Load(ctx context.Context, key string) (view.Snapshot, bool, error)
	Save(ctx context.Context, key string, snap view.Snapshot) error
}

type Session struct {
	Key          string
	Machine      *view.Machine
	LastActivity time.Time
}

type Options struct {
	// Machine is the template for every new view machine. Its OnChange is
	// replaced by the store.
	Machine   view.Options
	IdleTTL   time.Duration
	Persister Persister
	OnChange  func(key string, ev view.Event)
	Logger    *slog.Logger
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	template  view.Options
	idleTTL   time.Duration
	persister Persister
	onChange  func(key string, ev view.Event)
	logger    *slog.Logger
}

func NewStore(opts Options) *Store {
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Store{
		sessions:  make(map[string]*Session),
		template:  opts.Machine,
		idleTTL:   idleTTL,
		persister: opts.Persister,
		onChange:  opts.OnChange,
		logger:    logger,
	}
}

// Get returns the view machine for key, creating it (and restoring a saved
// snapshot, if any) on first use. A machine is only shared once its
// snapshot is in place.
func (s *Store) Get(ctx context.Context, key string) *view.Machine {
	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		sess.LastActivity = time.Now()
		s.mu.Unlock()
		return sess.Machine
	}
	s.mu.Unlock()

	m := s.newMachine(key)
	if snap, found := s.load(ctx, key); found {
		if err := m.Restore(snap); err != nil {
			s.logger.Warn("restore session failed", "session", key, "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		sess.LastActivity = time.Now()
		return sess.Machine
	}
	s.sessions[key] = &Session{
		Key:          key,
		Machine:      m,
		LastActivity: time.Now(),
	}
	return m
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL. Sessions with work in
// flight are kept.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.LastActivity) < s.idleTTL {
			continue
		}
		if busy(sess.Machine.State()) {
			continue
		}
		delete(s.sessions, key)
		evicted++
	}
	return evicted
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug("sessions evicted", "count", n)
			}
		}
	}
}

func (s *Store) newMachine(key string) *view.Machine {
	opts := s.template
	opts.OnChange = func(ev view.Event) {
		s.save(key, ev)
		if s.onChange != nil {
			s.onChange(key, ev)
		}
	}
	return view.New(opts)
}

func (s *Store) load(ctx context.Context, key string) (view.Snapshot, bool) {
	if s.persister == nil {
		return view.Snapshot{}, false
	}
	snap, found, err := s.persister.Load(ctx, key)
	if err != nil {
		s.logger.Warn("load session snapshot failed", "session", key, "err", err)
		return view.Snapshot{}, false
	}
	return snap, found
}

func (s *Store) save(key string, ev view.Event) {
	if s.persister == nil || ev.Type == view.EventRestored {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persister.Save(ctx, key, view.SnapshotOf(ev.State)); err != nil {
		s.logger.Warn("save session snapshot failed", "session", key, "err", err)
	}
}

func busy(state view.State) bool {
	switch st := state.(type) {
	case view.Loading:
		return true
	case view.Results:
		return st.Busy()
	}
	return false
}
