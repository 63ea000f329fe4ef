package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "homeworkbot/pkg/logx"
)

// fileStore appends deliveries to a JSON Lines file.
//
// The tail of the journal is mirrored in memory so Recent never rereads the
// file. When MaxEntries is set the file is compacted down to the newest
// MaxEntries lines once it grows past twice that. Without MaxEntries the
// file grows freely and the mirror holds the newest unboundedTail entries.
type fileStore struct {
	log  logx.Logger
	path string
	max  int

	keep int // tail length

	mu    sync.Mutex
	f     *os.File
	tail  []Delivery // oldest first
	lines int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	keep := cfg.MaxEntries
	if keep <= 0 {
		keep = unboundedTail
	}
	tail, lines, err := replayJournal(path, keep)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("journal opened", logx.String("path", path), logx.Int("entries", lines))
	return &fileStore{log: log, path: path, max: cfg.MaxEntries, keep: keep, f: f, tail: tail, lines: lines}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("journal closed")
	}
	if err := json.NewEncoder(s.f).Encode(d); err != nil {
		return err
	}
	s.lines++
	s.tail = append(s.tail, d)
	if len(s.tail) > s.keep {
		s.tail = append(s.tail[:0:0], s.tail[len(s.tail)-s.keep:]...)
	}
	if s.max > 0 && s.lines > 2*s.max {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Recent(ctx context.Context, n int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.tail) {
		n = len(s.tail)
	}
	out := make([]Delivery, 0, n)
	for i := len(s.tail) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}

// compactLocked rewrites the file with the in-memory tail.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, d := range s.tail {
		if err := enc.Encode(d); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = nf
	s.lines = len(s.tail)
	return nil
}

const unboundedTail = 500

// replayJournal loads the newest limit entries (all if limit<=0) and counts lines.
// Malformed lines are skipped.
func replayJournal(path string, limit int) ([]Delivery, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		tail  []Delivery
		lines int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var d Delivery
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			continue
		}
		lines++
		tail = append(tail, d)
		if limit > 0 && len(tail) > limit {
			tail = tail[1:]
		}
	}
	return tail, lines, sc.Err()
}
