package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type checkpointFile struct {
	LastBlock uint64 `json:"last_block"`
}

// CheckpointStore keeps the last processed position per chain in a local
// file and, when reachable, in the remote kv collection. The local file is
// authoritative while remote is down.
type CheckpointStore struct {
	layout Layout
	remote Remote
	logger *zap.Logger
}

// NewCheckpointStore builds a store. remote may be nil for local-only mode.
func NewCheckpointStore(layout Layout, remote Remote, logger *zap.Logger) *CheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{layout: layout, remote: remote, logger: logger}
}

// Get returns the reconciled checkpoint of chain. The lagging side is
// brought up to the larger value. An unreadable local file counts as unset.
func (s *CheckpointStore) Get(ctx context.Context, chain string) (uint64, bool, error) {
	path := s.layout.CheckpointPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()

	local := s.readLocal(chain, path)
	remote, remoteRead := s.readRemote(ctx, chain)

	merged, writeLocal, writeRemote := ReconcileCheckpoint(local, remote)
	if !merged.Set {
		return 0, false, nil
	}
	if writeLocal {
		if err := writeJSON(path, checkpointFile{LastBlock: merged.Block}); err != nil {
			return merged.Block, true, err
		}
		s.logger.Info("checkpoint reconciled",
			zap.String("chain", chain),
			zap.String("side", "local"),
			zap.Uint64("checkpoint", merged.Block),
		)
	}
	if writeRemote && remoteRead {
		if err := s.writeRemote(ctx, chain, merged.Block); err != nil {
			s.logger.Warn("remote checkpoint write failed", zap.String("chain", chain), zap.Error(err))
		} else {
			s.logger.Info("checkpoint reconciled",
				zap.String("chain", chain),
				zap.String("side", "remote"),
				zap.Uint64("checkpoint", merged.Block),
			)
		}
	}
	return merged.Block, true, nil
}

// Peek returns the larger of the local and remote checkpoints without
// writing to either side.
func (s *CheckpointStore) Peek(ctx context.Context, chain string) (uint64, bool, error) {
	path := s.layout.CheckpointPath(chain)
	unlock := pathLocks.lock(path)
	local := s.readLocal(chain, path)
	unlock()

	remote, _ := s.readRemote(ctx, chain)
	merged, _, _ := ReconcileCheckpoint(local, remote)
	if !merged.Set {
		return 0, false, nil
	}
	return merged.Block, true, nil
}

// Set advances the checkpoint of chain to pos. Values lower than the stored
// one are ignored. The local write is synchronous; remote failures are only
// logged.
func (s *CheckpointStore) Set(ctx context.Context, chain string, pos uint64) error {
	path := s.layout.CheckpointPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()

	local := s.readLocal(chain, path)
	if local.Set && local.Block > pos {
		s.logger.Warn("ignore checkpoint regression",
			zap.String("chain", chain),
			zap.Uint64("checkpoint", local.Block),
			zap.Uint64("requested", pos),
		)
		return nil
	}
	if !local.Set || local.Block < pos {
		if err := writeJSON(path, checkpointFile{LastBlock: pos}); err != nil {
			return err
		}
	}

	remote, ok := s.readRemote(ctx, chain)
	if !ok || (remote.Set && remote.Block >= pos) {
		return nil
	}
	if err := s.writeRemote(ctx, chain, pos); err != nil {
		s.logger.Warn("remote checkpoint write failed", zap.String("chain", chain), zap.Uint64("checkpoint", pos), zap.Error(err))
	}
	return nil
}

func (s *CheckpointStore) readLocal(chain, path string) CheckpointValue {
	var cp checkpointFile
	found, err := readJSON(path, &cp)
	if err != nil {
		s.logger.Warn("checkpoint file unreadable, treating as unset", zap.String("chain", chain), zap.Error(err))
		return CheckpointValue{}
	}
	return CheckpointValue{Block: cp.LastBlock, Set: found}
}

// readRemote returns ok=false when remote is absent, down or failing.
func (s *CheckpointStore) readRemote(ctx context.Context, chain string) (CheckpointValue, bool) {
	if s.remote == nil || !s.remote.Available(ctx) {
		return CheckpointValue{}, false
	}
	doc, found, err := s.remote.GetKV(ctx, CheckpointCollection, chain)
	if err != nil {
		s.logger.Warn("remote checkpoint read failed", zap.String("chain", chain), zap.Error(err))
		return CheckpointValue{}, false
	}
	if !found {
		return CheckpointValue{}, true
	}
	block, ok := DocUint(doc, "last_block")
	if !ok {
		s.logger.Warn("remote checkpoint malformed, treating as unset", zap.String("chain", chain))
		return CheckpointValue{}, true
	}
	return CheckpointValue{Block: block, Set: true}, true
}

func (s *CheckpointStore) writeRemote(ctx context.Context, chain string, pos uint64) error {
	return s.remote.SetKV(ctx, CheckpointCollection, chain, Document{
		"chain_id":   chain,
		"last_block": pos,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}
