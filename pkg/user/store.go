package user

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrInsufficientCoin = errors.New("insufficient coin")

// User is one account record, keyed by "channel:senderID". Coin is the
// consumable quota charged by costed commands.
type User struct {
	ID          string    `json:"id"`
	Coin        int64     `json:"coin"`
	Level       int       `json:"level"`
	LastCheckIn time.Time `json:"last_check_in"`
	Created     time.Time `json:"created"`
}

// Store is a JSON-file-backed account table. All mutation goes through the
// store so concurrent command dispatches cannot race on a balance.
type Store struct {
	users       map[string]*User
	mu          sync.Mutex
	path        string
	initialCoin int64
	checkInCoin int64
	nowFunc     func() time.Time
}

func NewStore(dataDir string, initialCoin, checkInCoin int64) *Store {
	s := &Store{
		users:       make(map[string]*User),
		initialCoin: initialCoin,
		checkInCoin: checkInCoin,
		nowFunc:     time.Now,
	}
	if dataDir != "" {
		s.path = filepath.Join(dataDir, "users.json")
		s.load()
	}
	return s
}

func (s *Store) GetOrCreate(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(id)
}

func (s *Store) getOrCreateLocked(id string) *User {
	if u, ok := s.users[id]; ok {
		return u
	}
	u := &User{
		ID:      id,
		Coin:    s.initialCoin,
		Created: s.nowFunc(),
	}
	s.users[id] = u
	s.saveLocked()
	return u
}

func (s *Store) Balance(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).Coin
}

// Consume deducts cost from the user's balance. On ErrInsufficientCoin the
// balance is left untouched.
func (s *Store) Consume(id string, cost int64) error {
	if cost <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreateLocked(id)
	if u.Coin < cost {
		return ErrInsufficientCoin
	}
	u.Coin -= cost
	s.saveLocked()
	return nil
}

func (s *Store) Grant(id string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreateLocked(id)
	u.Coin += amount
	s.saveLocked()
}

// CheckIn grants the daily coin once per calendar day. Returns the granted
// amount and false if the user already checked in today.
func (s *Store) CheckIn(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.getOrCreateLocked(id)
	now := s.nowFunc()
	if sameDay(u.LastCheckIn, now) {
		return 0, false
	}
	u.LastCheckIn = now
	u.Coin += s.checkInCoin
	s.saveLocked()
	return s.checkInCoin, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}

	var users map[string]*User
	if err := json.Unmarshal(data, &users); err != nil {
		return
	}
	s.users = users
}

func (s *Store) saveLocked() {
	if s.path == "" {
		return
	}

	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return
	}

	os.MkdirAll(filepath.Dir(s.path), 0755)
	os.WriteFile(s.path, data, 0600)
}
