package labels

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Source holds the current Index for a chain and swaps it atomically on reload.
type Source struct {
	path     string
	fallback File
	current  atomic.Pointer[Index]
	logger   *zap.Logger
}

// NewSource loads the initial index for path and fallback.
func NewSource(path string, fallback File, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{path: path, fallback: fallback, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// StaticSource wraps a fixed index.
func StaticSource(idx *Index) *Source {
	s := &Source{logger: zap.NewNop()}
	s.current.Store(idx)
	return s
}

// Index returns the current snapshot.
func (s *Source) Index() *Index {
	return s.current.Load()
}

// Reload re-reads the label file. On failure the previous snapshot is kept.
func (s *Source) Reload() error {
	if s.path == "" && s.current.Load() != nil {
		return nil
	}
	idx, err := Load(s.path, s.fallback)
	if err != nil {
		return err
	}
	s.current.Store(idx)
	exchange, organization := idx.Size()
	s.logger.Debug("labels loaded",
		zap.String("path", s.path),
		zap.Int("exchange", exchange),
		zap.Int("organization", organization),
	)
	return nil
}
