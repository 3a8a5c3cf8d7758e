package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

const compactEvery = 500

// fileStore keeps everything in memory and, when backed by files, appends
// every change to a journal that is periodically compacted into a snapshot.
//
// Files (prefix derived from Config.Path):
//   - <prefix>.snapshot.json
//   - <prefix>.journal.jsonl
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	recs    map[string]action.Record
	state   action.RecoveryState
	closed  bool
	persist bool

	snapshotPath string
	journal      *os.File
	writes       int
}

type snapshot struct {
	Actions []action.Record      `json:"actions"`
	State   action.RecoveryState `json:"state"`
}

type journalOp struct {
	Op     string                `json:"op"` // put | del | state
	Record *action.Record        `json:"record,omitempty"`
	ID     string                `json:"id,omitempty"`
	State  *action.RecoveryState `json:"state,omitempty"`
}

func newMemory(log logx.Logger) *fileStore {
	return &fileStore{log: log, recs: map[string]action.Record{}}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := newMemory(log)
	s.persist = true
	s.snapshotPath = prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	skipped, err := s.replayJournal(journalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	if skipped > 0 {
		log.Warn("journal had unreadable lines", logx.Int("skipped", skipped))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	if err := s.compactLocked(); err != nil {
		log.Warn("initial compact failed", logx.Err(err))
	}
	log.Debug("file store opened", logx.String("snapshot", s.snapshotPath), logx.Int("actions", len(s.recs)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) Create(_ context.Context, rec action.Record) (action.Record, error) {
	rec, err := prepareCreate(rec, time.Now())
	if err != nil {
		return action.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return action.Record{}, ErrClosed
	}
	if _, ok := s.recs[rec.ID]; ok {
		return action.Record{}, fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	if err := s.appendLocked(journalOp{Op: "put", Record: &rec}); err != nil {
		return action.Record{}, err
	}
	s.recs[rec.ID] = rec
	return rec, nil
}

func (s *fileStore) Get(_ context.Context, id string) (action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return action.Record{}, ErrClosed
	}
	rec, ok := s.recs[id]
	if !ok {
		return action.Record{}, fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	return rec, nil
}

func (s *fileStore) List(context.Context) ([]action.Record, error) {
	return s.list(false)
}

func (s *fileStore) ListActive(context.Context) ([]action.Record, error) {
	return s.list(true)
}

func (s *fileStore) list(activeOnly bool) ([]action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]action.Record, 0, len(s.recs))
	for _, r := range s.recs {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *fileStore) Patch(_ context.Context, id string, p action.Patch) (action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return action.Record{}, ErrClosed
	}
	rec, ok := s.recs[id]
	if !ok {
		return action.Record{}, fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	if p.Empty() {
		return rec, nil
	}
	rec = p.Apply(rec)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.appendLocked(journalOp{Op: "put", Record: &rec}); err != nil {
		return action.Record{}, err
	}
	s.recs[id] = rec
	return rec, nil
}

func (s *fileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.recs[id]; !ok {
		return fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	if err := s.appendLocked(journalOp{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.recs, id)
	return nil
}

func (s *fileStore) LoadRecoveryState(context.Context) (action.RecoveryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return action.RecoveryState{}, ErrClosed
	}
	st := s.state
	st.ExhaustedIDs = append([]string(nil), s.state.ExhaustedIDs...)
	return st, nil
}

func (s *fileStore) SaveRecoveryState(_ context.Context, st action.RecoveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	st.ExhaustedIDs = append([]string(nil), st.ExhaustedIDs...)
	if err := s.appendLocked(journalOp{Op: "state", State: &st}); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *fileStore) appendLocked(op journalOp) error {
	if !s.persist {
		return nil
	}
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// The op is already journaled; apply it so the snapshot includes it.
		s.applyLocked(op)
		if err := s.compactLocked(); err != nil {
			s.log.Debug("compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) applyLocked(op journalOp) {
	switch op.Op {
	case "put":
		if op.Record != nil && op.Record.ID != "" {
			s.recs[op.Record.ID] = *op.Record
		}
	case "del":
		delete(s.recs, op.ID)
	case "state":
		if op.State != nil {
			s.state = *op.State
		}
	}
}

func (s *fileStore) compactLocked() error {
	if !s.persist || s.journal == nil {
		return nil
	}
	snap := snapshot{Actions: make([]action.Record, 0, len(s.recs)), State: s.state}
	for _, r := range s.recs {
		snap.Actions = append(snap.Actions, r)
	}
	sortRecords(snap.Actions)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Actions {
		if r.ID != "" {
			s.recs[r.ID] = r
		}
	}
	s.state = snap.State
	return nil
}

// replayJournal applies journal ops on top of the snapshot. Torn or corrupt
// lines are skipped and counted.
func (s *fileStore) replayJournal(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			skipped++
			continue
		}
		s.applyLocked(op)
	}
	return skipped, sc.Err()
}

func sortRecords(recs []action.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
