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

	logx "pushrelay/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.commands.jsonl   (append-only JSON Lines)
//   - <prefix>.kv.snapshot.json (periodic snapshot)
//   - <prefix>.kv.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	commandsPath string
	commandsFile *os.File

	kvSnapshotPath string
	kvJournalFile  *os.File
	kv             map[string]map[string]string

	kvWrites     int
	compactEvery int
}

type kvRecord struct {
	NS      string `json:"ns"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	commandsPath := prefix + ".commands.jsonl"
	snapPath := prefix + ".kv.snapshot.json"
	journalPath := prefix + ".kv.journal.jsonl"

	cf, err := os.OpenFile(commandsPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	// Load kv from snapshot + journal.
	kv := map[string]map[string]string{}
	_ = loadKVSnapshot(snapPath, kv)
	_ = replayKVJournal(journalPath, kv)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}

	return &fileStore{
		log:            log,
		commandsPath:   commandsPath,
		commandsFile:   cf,
		kvSnapshotPath: snapPath,
		kvJournalFile:  jf,
		kv:             kv,
		compactEvery:   1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.commandsFile != nil {
		err1 = s.commandsFile.Close()
		s.commandsFile = nil
	}
	if s.kvJournalFile != nil {
		err2 = s.kvJournalFile.Close()
		s.kvJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendCommand(ctx context.Context, r CommandRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commandsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.commandsFile).Encode(r)
}

// Commands returns the most recent limit records, oldest first. limit <= 0
// returns all of them.
func (s *fileStore) Commands(ctx context.Context, limit int) ([]CommandRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commandsFile == nil {
		return nil, ErrClosed
	}
	f, err := os.Open(s.commandsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []CommandRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r CommandRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fileStore) Put(ctx context.Context, ns, key, value string) error {
	return s.write(ctx, kvRecord{NS: ns, Key: key, Value: value})
}

func (s *fileStore) Delete(ctx context.Context, ns, key string) error {
	return s.write(ctx, kvRecord{NS: ns, Key: key, Deleted: true})
}

func (s *fileStore) write(ctx context.Context, r kvRecord) error {
	_ = ctx
	r.Key = strings.TrimSpace(r.Key)
	if r.Key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournalFile == nil {
		return ErrClosed
	}
	applyKV(s.kv, r)

	if err := json.NewEncoder(s.kvJournalFile).Encode(r); err != nil {
		return err
	}
	s.kvWrites++
	if s.compactEvery > 0 && s.kvWrites%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("kv compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, ns, key string) (string, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournalFile == nil {
		return "", false, ErrClosed
	}
	v, ok := s.kv[ns][key]
	return v, ok, nil
}

func (s *fileStore) List(ctx context.Context, ns string) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournalFile == nil {
		return nil, ErrClosed
	}
	out := make(map[string]string, len(s.kv[ns]))
	for k, v := range s.kv[ns] {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.kvSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.kv); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.kvSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.kvJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.kvJournalFile.Seek(0, 2)
	return err
}

func applyKV(kv map[string]map[string]string, r kvRecord) {
	if r.Deleted {
		if m := kv[r.NS]; m != nil {
			delete(m, r.Key)
			if len(m) == 0 {
				delete(kv, r.NS)
			}
		}
		return
	}
	m := kv[r.NS]
	if m == nil {
		m = map[string]string{}
		kv[r.NS] = m
	}
	m[r.Key] = r.Value
}

func loadKVSnapshot(path string, out map[string]map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for ns, kv := range m {
		for k, v := range kv {
			applyKV(out, kvRecord{NS: ns, Key: k, Value: v})
		}
	}
	return nil
}

func replayKVJournal(path string, out map[string]map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r kvRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		applyKV(out, r)
	}
	return s.Err()
}
