package store

import (
	"log/slog"
	"sync"

	"authgate/internal/schema"
)

// State is the client's notion of who is logged in. IsAuthenticated is
// always derived from User, never set independently.
type State struct {
	User            *schema.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	Error           string       `json:"error"`
}

// Store is the single source of truth for auth state during one
// process lifetime. All mutations go through the four entry points
// below; each one is atomic, then written through to the snapshot and
// broadcast to subscribers.
type Store struct {
	mu    sync.Mutex
	state State
	snap  Snapshot
	log   *slog.Logger

	subs    map[int]chan State
	nextSub int
}

func New(snap Snapshot, log *slog.Logger) *Store {
	s := &Store{
		state: State{
			User:            nil,
			IsAuthenticated: false,
			// a reconciliation is assumed pending at process start
			IsLoading: true,
			Error:     "",
		},
		snap: snap,
		log:  log,
		subs: make(map[int]chan State),
	}

	// seed from the previous run so consumers do not flash a
	// logged-out view while the authoritative check is pending
	if snap != nil {
		user, authed, err := snap.Load()

		if err != nil {
			log.Warn("auth snapshot load failed", "err", err)
		} else {
			s.state.User = user
			s.state.IsAuthenticated = authed
		}
	}

	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// SetUser replaces the user wholesale and derives IsAuthenticated.
// This is the only path by which IsAuthenticated becomes true.
func (s *Store) SetUser(user *schema.User) {
	s.apply(func(st *State) {
		st.User = user
		st.IsAuthenticated = user != nil
		st.IsLoading = false
		st.Error = ""
	})
}

func (s *Store) SetLoading(loading bool) {
	s.apply(func(st *State) {
		st.IsLoading = loading
	})
}

// SetError records a user-visible failure. It does not touch the user:
// a transient error does not imply logout, only an explicit 401 does.
func (s *Store) SetError(msg string) {
	s.apply(func(st *State) {
		st.Error = msg
		st.IsLoading = false
	})
}

// ClearAuth resets to the logged-out terminal state.
func (s *Store) ClearAuth() {
	s.apply(func(st *State) {
		st.User = nil
		st.IsAuthenticated = false
		st.IsLoading = false
		st.Error = ""
	})
}

func (s *Store) apply(mutate func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutate(&s.state)
	st := s.state

	for _, ch := range s.subs {
		send(ch, st)
	}

	// write-through stays under the lock so saves land in mutation
	// order; it is still best effort, a storage failure must never
	// fail the in-memory update
	if s.snap != nil {
		if err := s.snap.Save(st.User, st.IsAuthenticated); err != nil {
			s.log.Warn("auth snapshot save failed", "err", err)
		}
	}
}

// Subscribe returns a channel that receives every state change after
// the call. Slow consumers only see the latest state; a mutation never
// blocks on a subscriber.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan State, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// send delivers latest-wins: if the buffer is full the stale value is
// dropped in favor of the new one.
func send(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- st:
	default:
	}
}
