package storage

import (
	"context"
	"strings"
	"sync"
)

// memoryStore keeps everything in process. It backs the "memory" driver and
// callers that run without configured persistence.
type memoryStore struct {
	mu     sync.Mutex
	closed bool
	cmds   []CommandRecord
	kv     map[string]map[string]string
}

// NewMemory returns an empty in-process Store.
func NewMemory() Store {
	return &memoryStore{kv: map[string]map[string]string{}}
}

func (s *memoryStore) AppendCommand(ctx context.Context, r CommandRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cmds = append(s.cmds, r)
	return nil
}

func (s *memoryStore) Commands(ctx context.Context, limit int) ([]CommandRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := s.cmds
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]CommandRecord(nil), out...), nil
}

func (s *memoryStore) Put(ctx context.Context, ns, key, value string) error {
	return s.write(ctx, kvRecord{NS: ns, Key: key, Value: value})
}

func (s *memoryStore) Delete(ctx context.Context, ns, key string) error {
	return s.write(ctx, kvRecord{NS: ns, Key: key, Deleted: true})
}

func (s *memoryStore) write(ctx context.Context, r kvRecord) error {
	_ = ctx
	r.Key = strings.TrimSpace(r.Key)
	if r.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	applyKV(s.kv, r)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, ns, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.kv[ns][strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *memoryStore) List(ctx context.Context, ns string) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]string, len(s.kv[ns]))
	for k, v := range s.kv[ns] {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
