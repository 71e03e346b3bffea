package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whaleScope/internal/storage"
)

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ch, err := a.chain(args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	events, err := a.reader.LoadRecentEvents(ctx, ch.ID, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func runMarkSeen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ch, err := a.chain(args[0])
	if err != nil {
		return err
	}
	marker, err := a.reader.MarkSeen(ctx, ch.ID)
	if err != nil {
		return err
	}
	a.logger.Info("marked seen",
		zap.String("chain", ch.ID),
		zap.Uint64("seen_block", marker.Block),
		zap.String("hash", marker.Hash),
	)
	return nil
}

type chainStatus struct {
	Chain      string              `json:"chain"`
	Kind       string              `json:"kind"`
	Checkpoint *uint64             `json:"checkpoint"`
	HasNew     bool                `json:"has_new"`
	Seen       *storage.SeenMarker `json:"seen,omitempty"`
	Events     int                 `json:"events"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	seen := storage.NewSeenStore(storage.Layout{Dir: a.cfg.DataDir}, a.logger)
	out := make([]chainStatus, 0, len(a.cfg.Chains))
	for _, ch := range a.cfg.Chains {
		st, err := statusOf(ctx, a, seen, ch.ID)
		if err != nil {
			return err
		}
		st.Kind = ch.Kind
		out = append(out, st)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func statusOf(ctx context.Context, a *app, seen *storage.SeenStore, chainID string) (chainStatus, error) {
	st := chainStatus{Chain: chainID}
	cp, ok, err := a.checkpoints.Peek(ctx, chainID)
	if err != nil {
		return st, err
	}
	if ok {
		st.Checkpoint = &cp
	}
	if marker, found := seen.Get(chainID); found {
		st.Seen = &marker
	}
	if st.HasNew, err = a.reader.HasNew(ctx, chainID); err != nil {
		return st, err
	}
	events, err := a.events.Load(ctx, chainID, 0)
	if err != nil {
		return st, err
	}
	st.Events = len(events)
	return st, nil
}
