package payhoa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testSession() *Session {
	expires := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	return &Session{
		BearerToken:    "bearer-token",
		CSRFToken:      "csrf-token",
		Cookies:        map[string]string{"payhoa_session": "abc", "XSRF-TOKEN": "enc%3D%3D"},
		OrganizationID: "9137",
		ExpiresAt:      &expires,
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected a session, got nil")
	}
	if loaded.BearerToken != "bearer-token" {
		t.Errorf("Expected bearer token to round trip, got %s", loaded.BearerToken)
	}
	if loaded.OrganizationID != "9137" {
		t.Errorf("Expected organization 9137, got %s", loaded.OrganizationID)
	}
	if loaded.Cookies["payhoa_session"] != "abc" {
		t.Errorf("Expected cookies to round trip, got %v", loaded.Cookies)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(*testSession().ExpiresAt) {
		t.Errorf("Expected expiry to round trip, got %v", loaded.ExpiresAt)
	}
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	// The file grants full account access; nobody but the owner may read it.
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	dirInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Stat dir returned error: %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("Expected dir mode 0700, got %o", perm)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	sess, err := store.Load()
	if err != nil {
		t.Fatalf("Expected missing file to be a non-error, got %v", err)
	}
	if sess != nil {
		t.Errorf("Expected nil session for missing file, got %+v", sess)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load()
	if err == nil {
		t.Fatal("Expected error for corrupt file")
	}
	if !IsKind(err, KindSessionStoreIO) {
		t.Errorf("Expected session_store_io, got %s", KindOf(err))
	}
}

func TestFileStore_LoadIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"bearerToken":"only-token"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load()
	if err == nil {
		t.Fatal("Expected error for incomplete session")
	}
	if !IsKind(err, KindSessionStoreIO) {
		t.Errorf("Expected session_store_io, got %s", KindOf(err))
	}
}

func TestFileStore_SaveIncomplete(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	err := store.Save(&Session{BearerToken: "token"})
	if err == nil {
		t.Fatal("Expected incomplete session to be refused")
	}
	if !IsKind(err, KindSessionStoreIO) {
		t.Errorf("Expected session_store_io, got %s", KindOf(err))
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "session.json"))

	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "session-") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the session file, got %d entries", len(entries))
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	first := testSession()
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	second := testSession()
	second.BearerToken = "rotated-token"
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.BearerToken != "rotated-token" {
		t.Errorf("Expected the newer session, got %s", loaded.BearerToken)
	}
}

func TestFileStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	if err := store.Save(testSession()); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected session file to be removed")
	}

	// Clearing again is a no-op, not an error.
	if err := store.Clear(); err != nil {
		t.Errorf("Expected repeated clear to succeed, got %v", err)
	}
}

func TestDefaultSessionPath(t *testing.T) {
	path, err := DefaultSessionPath()
	if err != nil {
		t.Skipf("no user cache dir in this environment: %v", err)
	}
	if filepath.Base(path) != "session.json" {
		t.Errorf("Expected session.json, got %s", path)
	}
	if filepath.Base(filepath.Dir(path)) != "treasurer" {
		t.Errorf("Expected treasurer directory, got %s", path)
	}
}
