package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/neptus-sync/internal/errs"
)

func signed(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func Test_DefaultDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := DefaultDir(), filepath.Join(dir, "neptus-sync"); got != want {
		t.Fatalf("DefaultDir=%q, want %q", got, want)
	}
	s := NewFileSession("")
	if !strings.HasPrefix(s.Path(), dir) || !strings.HasSuffix(s.Path(), "token.json") {
		t.Fatalf("Path unexpected: %s", s.Path())
	}
}

func Test_SaveLoad(t *testing.T) {
	t.Parallel()
	s := NewFileSession(filepath.Join(t.TempDir(), "nested"))

	if _, err := s.Load(); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("missing file: want ErrNoCredentials, got %v", err)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, "user-7", exp)
	saved, err := s.Save(tok, "prop-1")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Subject != "user-7" || !saved.ExpiresAt.Equal(exp) {
		t.Fatalf("claims not applied: %+v", saved)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != tok || got.PropertyID != "prop-1" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("Load mismatch: %+v", got)
	}

	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode %v", fi.Mode().Perm())
	}
}

func Test_ExpiredReadsAsAbsent(t *testing.T) {
	t.Parallel()
	s := NewFileSession(t.TempDir())
	clock := time.Now()
	s.now = func() time.Time { return clock }

	tok := signed(t, "u", clock.Add(time.Minute))
	if _, err := s.Save(tok, "p"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := s.Load(); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("expired: want ErrNoCredentials, got %v", err)
	}
	if _, err := s.Save(tok, "p"); err == nil {
		t.Fatalf("saving an already expired token must fail")
	}
}

func Test_OpaqueTokenHasNoExpiry(t *testing.T) {
	t.Parallel()
	s := NewFileSession(t.TempDir())

	saved, err := s.Save("opaque-token", "p")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.ExpiresAt.IsZero() || saved.Subject != "" {
		t.Fatalf("opaque token must not carry claims: %+v", saved)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func Test_SaveRejectsEmpty(t *testing.T) {
	t.Parallel()
	s := NewFileSession(t.TempDir())
	if _, err := s.Save("", "p"); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := s.Save("tok", " "); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("empty property: %v", err)
	}
}

func Test_Clear(t *testing.T) {
	t.Parallel()
	s := NewFileSession(t.TempDir())
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty: %v", err)
	}
	if _, err := s.Save("tok", "p"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("after Clear: %v", err)
	}
}

func Test_LoadCorrupt(t *testing.T) {
	t.Parallel()
	s := NewFileSession(t.TempDir())
	if err := os.WriteFile(s.Path(), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil || errors.Is(err, errs.ErrNoCredentials) {
		t.Fatalf("corrupt file must surface a decode error, got %v", err)
	}
}
