package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"statusrelay/internal/cachet"
	logx "statusrelay/pkg/logx"
)

const fileStateVersion = 1

// fileStore keeps the whole state in memory and rewrites one JSON file on Flush.
//
// The file is written to <path>.tmp and renamed into place with mode 0600.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	state  fileState
	dirty  bool
	closed bool
}

type fileState struct {
	Version    int                         `json:"version"`
	Watermark  *time.Time                  `json:"watermark,omitempty"`
	Components map[string]cachet.Component `json:"components"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		log:   log,
		path:  path,
		state: fileState{Version: fileStateVersion, Components: map[string]cachet.Component{}},
	}
	if err := st.load(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *fileStore) load() error {
	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("state file not found, starting empty", logx.String("path", s.path))
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("%w: %s (%s)", ErrInsecurePermissions, s.path, fi.Mode().Perm())
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if st.Version > fileStateVersion {
		return fmt.Errorf("state file %s: unsupported version %d", s.path, st.Version)
	}
	if st.Components == nil {
		st.Components = map[string]cachet.Component{}
	}
	st.Version = fileStateVersion
	s.state = st
	s.log.Debug("state file loaded",
		logx.String("path", s.path),
		logx.Int("components", len(st.Components)),
	)
	return nil
}

func (s *fileStore) Contains(ctx context.Context, id string) (bool, error) {
	_, ok, err := s.Get(ctx, id)
	return ok, err
}

func (s *fileStore) Get(ctx context.Context, id string) (cachet.Component, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cachet.Component{}, false, ErrClosed
	}
	c, ok := s.state.Components[id]
	return c, ok, nil
}

func (s *fileStore) Set(ctx context.Context, id string, c cachet.Component) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state.Components[id] = c
	s.dirty = true
	return nil
}

func (s *fileStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	if s.state.Watermark == nil {
		return time.Time{}, false, nil
	}
	return *s.state.Watermark, true, nil
}

func (s *fileStore) SetWatermark(ctx context.Context, t time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state.Watermark = &t
	s.dirty = true
	return nil
}

func (s *fileStore) Flush(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.dirty {
		return nil
	}
	if err := s.writeLocked(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *fileStore) writeLocked() error {
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// OpenFile does not change the mode of a leftover tmp file.
	if err := os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	// the rename is only durable once the directory entry is
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.log.Debug("state file written",
		logx.String("path", s.path),
		logx.Int("components", len(s.state.Components)),
	)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dirty {
		s.log.Warn("state file closed with unflushed changes", logx.String("path", s.path))
	}
	return nil
}
