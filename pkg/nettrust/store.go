package nettrust

import (
	"errors"
	"sort"
	"sync"
)

// ErrStoreClosed is returned by a Store after Close.
var ErrStoreClosed = errors.New("trust store is closed")

// Record is a persisted trust entry.
type Record struct {
	Network Network    `json:"network"`
	Trust   TrustLevel `json:"trust"`
}

// Store persists trust per network.
type Store interface {
	// Trust returns the stored trust of n; ok is false when nothing is stored.
	Trust(n Network) (t TrustLevel, ok bool, err error)
	SetTrust(n Network, t TrustLevel) error
	Networks() ([]Record, error)
	Close() error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mx      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Trust implements Store.
func (s *MemoryStore) Trust(n Network) (TrustLevel, bool, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	if s.closed {
		return Unknown, false, ErrStoreClosed
	}
	r, ok := s.records[n.Key()]
	if !ok {
		return Unknown, false, nil
	}
	return r.Trust, true, nil
}

// SetTrust implements Store.
func (s *MemoryStore) SetTrust(n Network, t TrustLevel) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.records[n.Key()] = Record{Network: n, Trust: t}
	return nil
}

// Networks implements Store.
func (s *MemoryStore) Networks() ([]Record, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

// Close implements io.Closer
func (s *MemoryStore) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	return nil
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Network.Key() < rs[j].Network.Key()
	})
}
