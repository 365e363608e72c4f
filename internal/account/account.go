// Package account loads user accounts from a directory of TOML files
// and verifies passwords against bcrypt hashes. The wire protocol's
// credential obfuscation is not authentication; this package is.
package account

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both unknown logins and wrong passwords,
// so a failed login does not reveal which half was wrong.
var ErrInvalidCredentials = errors.New("invalid login or password")

// GuestLogin is the login name reserved for guest access.
const GuestLogin = "guest"

// Identity is the [identity] table of an account file.
type Identity struct {
	Name     string `toml:"name"`
	Login    string `toml:"login"`
	Password string `toml:"password"` // bcrypt hash; empty accepts only an empty password
}

// FilePermissions gates file-area operations.
type FilePermissions struct {
	Download   bool `toml:"download"`
	Upload     bool `toml:"upload"`
	Delete     bool `toml:"delete"`
	Rename     bool `toml:"rename"`
	MakeFolder bool `toml:"make_folder"`
}

// UserPermissions gates operations aimed at other users.
type UserPermissions struct {
	Disconnect bool `toml:"disconnect"`
	Broadcast  bool `toml:"broadcast"`
	GetInfo    bool `toml:"get_info"`
}

// NewsPermissions gates the news feed.
type NewsPermissions struct {
	Read bool `toml:"read"`
	Post bool `toml:"post"`
}

// ChatPermissions gates chat.
type ChatPermissions struct {
	Send       bool `toml:"send"`
	SetSubject bool `toml:"set_subject"`
}

// MiscPermissions holds the grab bag.
type MiscPermissions struct {
	UseAnyName bool `toml:"use_any_name"`
	Admin      bool `toml:"admin"` // shows the admin flag in user lists
}

// Permissions is the [permissions] table of an account file.
type Permissions struct {
	File FilePermissions `toml:"file"`
	User UserPermissions `toml:"user"`
	News NewsPermissions `toml:"news"`
	Chat ChatPermissions `toml:"chat"`
	Misc MiscPermissions `toml:"misc"`
}

// Account is one <login>.toml file.
type Account struct {
	Identity    Identity    `toml:"identity"`
	Permissions Permissions `toml:"permissions"`
}

// Verify compares a cleartext password against the account's hash. An
// account with no hash accepts only an empty password.
func (a *Account) Verify(password string) error {
	if a.Identity.Password == "" {
		if password == "" {
			return nil
		}
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.Identity.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for an account file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// GuestAccount returns the built-in guest used when no guest.toml
// exists: read and chat, nothing destructive.
func GuestAccount() *Account {
	return &Account{
		Identity: Identity{Login: GuestLogin},
		Permissions: Permissions{
			File: FilePermissions{Download: true},
			News: NewsPermissions{Read: true},
			Chat: ChatPermissions{Send: true},
			User: UserPermissions{GetInfo: true},
		},
	}
}
