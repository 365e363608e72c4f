package account

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Store holds the accounts read from a directory of <login>.toml files.
// The set is immutable between loads; Reload replaces it wholesale.
type Store struct {
	path        string
	allowGuests bool

	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStore loads every account file under path. An empty path yields an
// empty store, useful when the server runs guests-only.
func NewStore(path string, allowGuests bool) (*Store, error) {
	s := &Store{
		path:        path,
		allowGuests: allowGuests,
		accounts:    map[string]*Account{},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the account directory. On error the previous set stays
// in effect.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("read account directory %q: %w", s.path, err)
	}

	accounts := make(map[string]*Account)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(s.path, entry.Name())

		acct, err := loadFile(path)
		if err != nil {
			return err
		}
		if acct.Identity.Login == "" {
			return fmt.Errorf("account file %q has no identity.login", path)
		}
		if _, dup := accounts[acct.Identity.Login]; dup {
			return fmt.Errorf("duplicate account login %q in %q", acct.Identity.Login, path)
		}
		accounts[acct.Identity.Login] = acct
	}

	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()
	return nil
}

// loadFile decodes one account file. Decoding is strict: a misspelled
// permission key is a load error, not a silently open permission.
func loadFile(path string) (*Account, error) {
	var acct Account
	meta, err := toml.DecodeFile(path, &acct)
	if err != nil {
		return nil, fmt.Errorf("parse account file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("account file %q: unknown key %q", path, undecoded[0].String())
	}
	return &acct, nil
}

// Lookup returns the account with the given login.
func (s *Store) Lookup(login string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[login]
	return acct, ok
}

// Authenticate verifies login and password. An empty login is a guest
// login when the server allows guests; otherwise every failure is
// ErrInvalidCredentials.
func (s *Store) Authenticate(login, password string) (*Account, error) {
	if login == "" {
		return s.Guest()
	}

	acct, ok := s.Lookup(login)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := acct.Verify(password); err != nil {
		return nil, err
	}
	return acct, nil
}

// Guest returns the guest account: guest.toml when present, the
// built-in otherwise. Fails when guests are disabled.
func (s *Store) Guest() (*Account, error) {
	if acct, ok := s.Lookup(GuestLogin); ok {
		return acct, nil
	}
	if !s.allowGuests {
		return nil, ErrInvalidCredentials
	}
	return GuestAccount(), nil
}

// All returns every loaded account ordered by login.
func (s *Store) All() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Login < out[j].Identity.Login
	})
	return out
}

// Len returns the loaded account count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
