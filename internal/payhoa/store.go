package payhoa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists sessions between runs. Load returns (nil, nil) when no
// session has ever been saved; that is not an error.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// DefaultSessionPath is the conventional location of the session file,
// under the user's cache directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", &Error{Kind: KindSessionStoreIO, Op: "session_path", Err: err}
	}
	return filepath.Join(dir, "treasurer", "session.json"), nil
}

// FileStore keeps the session in a single JSON file readable only by the
// owner. Tokens grant full account access, so the file is written 0600 and
// replaced atomically to never leave a partial session on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the saved session. A missing file means no session; a file
// that cannot be read or parsed, or that holds an incomplete session, is a
// store error so the caller can fall back to a fresh login.
func (s *FileStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Kind: KindSessionStoreIO, Op: "load_session", Err: err}
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &Error{Kind: KindSessionStoreIO, Op: "load_session", Err: fmt.Errorf("corrupt session file %s: %w", s.path, err)}
	}
	if !sess.Complete() {
		return nil, &Error{Kind: KindSessionStoreIO, Op: "load_session", Err: fmt.Errorf("incomplete session in %s", s.path)}
	}
	return &sess, nil
}

// Save writes the session atomically: serialize to a temp file in the same
// directory, fsync via Close, then rename over the target. Incomplete
// sessions are refused rather than persisted.
func (s *FileStore) Save(sess *Session) error {
	if !sess.Complete() {
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: fmt.Errorf("refusing to persist incomplete session")}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "session-*.json")
	if err != nil {
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	if err := tmp.Chmod(0o600); err != nil {
		return cleanup(err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &Error{Kind: KindSessionStoreIO, Op: "save_session", Err: err}
	}
	return nil
}

// Clear removes the session file. Clearing a store that has nothing saved
// succeeds.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return &Error{Kind: KindSessionStoreIO, Op: "clear_session", Err: err}
	}
	return nil
}
