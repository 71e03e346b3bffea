package storage

import (
	"go.uber.org/zap"
)

// SeenMarker records the newest event a reader has acknowledged.
type SeenMarker struct {
	Block uint64 `json:"seen_block"`
	Hash  string `json:"seen_hash"`
}

// SeenStore keeps one SeenMarker file per chain.
type SeenStore struct {
	layout Layout
	logger *zap.Logger
}

func NewSeenStore(layout Layout, logger *zap.Logger) *SeenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeenStore{layout: layout, logger: logger}
}

// Get returns the marker of chain. An unreadable file counts as unset.
func (s *SeenStore) Get(chain string) (SeenMarker, bool) {
	path := s.layout.SeenPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()

	var m SeenMarker
	found, err := readJSON(path, &m)
	if err != nil {
		s.logger.Warn("seen marker unreadable, treating as unset", zap.String("chain", chain), zap.Error(err))
		return SeenMarker{}, false
	}
	return m, found
}

// Set replaces the marker of chain.
func (s *SeenStore) Set(chain string, m SeenMarker) error {
	path := s.layout.SeenPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()
	return writeJSON(path, m)
}
