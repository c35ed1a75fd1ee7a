// Package auth persists the bearer session used by the sync client.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/neptus-sync/internal/errs"
)

const fileName = "token.json"

// Session is what the sync manager needs to talk to the server.
type Session struct {
	AccessToken string    `json:"access_token"`
	PropertyID  string    `json:"property_id"`
	Subject     string    `json:"subject,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"` // zero: no exp claim
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// DefaultDir returns $XDG_CONFIG_HOME/neptus-sync, or ~/.config/neptus-sync.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "neptus-sync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "neptus-sync")
}

// FileSession stores a Session as JSON in dir/token.json.
type FileSession struct {
	dir string
	now func() time.Time
}

// NewFileSession returns a session store rooted at dir; empty dir means DefaultDir.
func NewFileSession(dir string) *FileSession {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileSession{dir: dir, now: time.Now}
}

func (f *FileSession) Dir() string  { return f.dir }
func (f *FileSession) Path() string { return filepath.Join(f.dir, fileName) }

// Save stores token for propertyID. Expiry and subject come from the token's claims when it is a JWT.
func (f *FileSession) Save(token, propertyID string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.TrimSpace(propertyID) == "" {
		return Session{}, fmt.Errorf("save session: %w", errs.ErrNoCredentials)
	}
	s := Session{AccessToken: token, PropertyID: strings.TrimSpace(propertyID)}
	if sub, exp, err := Claims(token); err == nil {
		s.Subject, s.ExpiresAt = sub, exp
	}
	if s.Expired(f.now()) {
		return Session{}, fmt.Errorf("save session: token expired at %s", s.ExpiresAt.Format(time.RFC3339))
	}

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return Session{}, err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return Session{}, err
	}
	if err := os.WriteFile(f.Path(), b, 0o600); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Load returns the stored session. A missing file or an expired token yields errs.ErrNoCredentials.
func (f *FileSession) Load() (Session, error) {
	b, err := os.ReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, errs.ErrNoCredentials
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("decode %s: %w", f.Path(), err)
	}
	if s.AccessToken == "" || s.Expired(f.now()) {
		return Session{}, errs.ErrNoCredentials
	}
	return s, nil
}

// Clear removes the stored session. Clearing an absent session is not an error.
func (f *FileSession) Clear() error {
	err := os.Remove(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Claims reads sub and exp from a JWT without verifying its signature.
// The token is issued and checked by the server; the client only needs to know when to stop using it.
func Claims(token string) (subject string, expiresAt time.Time, err error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}
	return claims.Subject, expiresAt, nil
}
