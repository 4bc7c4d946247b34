package user

import (
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/atomicfile"
)

// Store is the durable card → user mapping plus the redundant blocklist
// set. The blocklist is derivable from the users' blocked state but kept
// as its own file for O(1) lookup on the scan hot path, and because cards
// can be blocked before they are ever provisioned.
//
// One mutex guards both maps; every mutation rewrites the affected file
// atomically before it returns, so a successful call means the disk and
// memory agree.
type Store struct {
	mu          sync.Mutex
	usersPath   string
	blockedPath string
	users       map[string]User
	blocked     map[string]bool
	logger      *slog.Logger
}

func NewStore(usersPath, blockedPath string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		usersPath:   usersPath,
		blockedPath: blockedPath,
		users:       make(map[string]User),
		blocked:     make(map[string]bool),
		logger:      logger,
	}

	if err := atomicfile.ReadJSON(usersPath, &s.users); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := atomicfile.ReadJSON(blockedPath, &s.blocked); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Get returns the user for a card.
func (s *Store) Get(card string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[card]
	return u, ok
}

// IsBlocked is the hot-path blocklist membership check.
func (s *Store) IsBlocked(card string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[card]
}

// List returns all users joined with blocklist state, sorted by name.
func (s *Store) List() []View {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]View, 0, len(s.users))
	for card, u := range s.users {
		out = append(out, View{
			CardNumber:       card,
			ID:               u.ID,
			Name:             u.Name,
			RefID:            u.RefID,
			Blocked:          s.blocked[card],
			PrivacyProtected: u.PrivacyProtected,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Add inserts or replaces a user. Card number must be all digits; id and
// name are required.
func (s *Store) Add(u User) error {
	u.CardNumber = strings.TrimSpace(u.CardNumber)
	if !isDigits(u.CardNumber) || u.ID == "" || u.Name == "" {
		return internal.NewValidationError("card_number,id,name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.users[u.CardNumber]
	s.users[u.CardNumber] = u
	if err := atomicfile.WriteJSON(s.usersPath, s.users); err != nil {
		// do not keep state the disk refused
		if existed {
			s.users[u.CardNumber] = prev
		} else {
			delete(s.users, u.CardNumber)
		}
		return internal.NewInternalError("failed to persist users", err)
	}
	return nil
}

// Delete removes a user by card number.
func (s *Store) Delete(card string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[card]
	if !ok {
		return internal.ErrUserNotFound
	}
	delete(s.users, card)
	if err := atomicfile.WriteJSON(s.usersPath, s.users); err != nil {
		s.users[card] = prev
		return internal.NewInternalError("failed to persist users", err)
	}
	return nil
}

// SetBlocked adds or removes a card from the blocklist. The card does not
// have to be a provisioned user.
func (s *Store) SetBlocked(card string, blocked bool) error {
	card = strings.TrimSpace(card)
	if card == "" {
		return internal.NewValidationError("card_number required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	was, existed := s.blocked[card]
	if blocked {
		s.blocked[card] = true
	} else {
		delete(s.blocked, card)
	}
	if err := atomicfile.WriteJSON(s.blockedPath, s.blocked); err != nil {
		if existed {
			s.blocked[card] = was
		} else {
			delete(s.blocked, card)
		}
		return internal.NewInternalError("failed to persist blocklist", err)
	}
	return nil
}

// SetPrivacy flips the privacy-protected flag on an existing user.
func (s *Store) SetPrivacy(card string, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[card]
	if !ok {
		return internal.ErrUserNotFound
	}
	prev := u.PrivacyProtected
	u.PrivacyProtected = enable
	s.users[card] = u
	if err := atomicfile.WriteJSON(s.usersPath, s.users); err != nil {
		u.PrivacyProtected = prev
		s.users[card] = u
		return internal.NewInternalError("failed to persist users", err)
	}
	return nil
}

// FilesPresent reports whether the two backing files exist, for /status.
func (s *Store) FilesPresent() (users, blocked bool) {
	_, err := os.Stat(s.usersPath)
	users = err == nil
	_, err = os.Stat(s.blockedPath)
	blocked = err == nil
	return
}
